package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/config"
	"github.com/npezzotti/go-gigchat/internal/server"
	"github.com/rs/zerolog"
)

// pinger is the slice of the store the health check needs.
type pinger interface {
	Ping(ctx context.Context) error
}

type GoChatApp struct {
	log            zerolog.Logger
	db             pinger
	mux            *http.Server
	cs             *server.ChatServer
	rooms          *chat.Registry
	messages       *chat.MessageStore
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
}

func NewGoChatApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, rooms *chat.Registry, messages *chat.MessageStore, db pinger, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		rooms:          rooms,
		messages:       messages,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/rooms/direct", s.authMiddleware(s.createDirectRoom))
	mux.Handle("GET /api/orders/{orderId}/room", s.authMiddleware(s.getOrderRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/rooms/{roomId}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/rooms/{roomId}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("DELETE /api/rooms/{roomId}/messages", s.authMiddleware(s.purgeMessages))
	mux.Handle("POST /api/rooms/{roomId}/archive", s.authMiddleware(s.archiveRoom))
	mux.Handle("POST /api/orders/{orderId}/archive", s.authMiddleware(s.archiveOrderRoom))
	mux.Handle("GET /api/users/online", s.authMiddleware(s.onlineUsers))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
