package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-gigchat/internal/api"
	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/config"
	"github.com/npezzotti/go-gigchat/internal/database"
	"github.com/npezzotti/go-gigchat/internal/identity"
	"github.com/npezzotti/go-gigchat/internal/server"
	"github.com/npezzotti/go-gigchat/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const memoryDSN = "memory://"

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Str("service", "gigchat").Logger()
}

func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (database.ChatRepository, error) {
	if cfg.DatabaseDSN == memoryDSN {
		logger.Warn().Msg("using in-memory store, data will not survive a restart")
		return database.NewMemoryChatRepository(), nil
	}

	db, err := database.NewPgChatRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		logger.Info().Msg("running database migrations...")
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func newDirectory(ctx context.Context, cfg *config.Config, db database.ChatRepository, logger zerolog.Logger) (identity.Directory, func(), error) {
	var dir identity.Directory = identity.NewRepositoryDirectory(db)
	if cfg.RedisURL == "" {
		return dir, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// the cache is optional; lookups fall through while redis is down
		logger.Warn().Err(err).Msg("redis unreachable at startup")
	} else {
		logger.Info().Msg("connected to Redis")
	}

	return identity.NewCachedDirectory(dir, client, logger), func() { client.Close() }, nil
}

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	env, err := config.LoadEnv()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("env")
	}

	allowedOrigins := stringSliceFlag(env.AllowedOrigins)
	flag.StringVar(&env.ServerAddr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&env.DatabaseDSN, "dsn", env.DatabaseDSN, "database connection string, or memory:// for an in-process store")
	flag.StringVar(&env.SigningKey, "signing-key", env.SigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&env.RedisURL, "redis-url", env.RedisURL, "redis URL for the identity cache (optional)")
	flag.DurationVar(&env.StoreTimeout, "store-timeout", env.StoreTimeout, "timeout for each store operation")
	flag.StringVar(&env.LogLevel, "log-level", env.LogLevel, "log level")
	flag.StringVar(&env.Env, "env", env.Env, "environment (development or production)")
	flag.BoolVar(&env.Migrate, "migrate", env.Migrate, "apply database migrations on startup")
	flag.BoolVar(&env.EnforceOrderMembership, "enforce-order-membership", env.EnforceOrderMembership, "only let an order's buyer and seller join its room")
	flag.Parse()
	env.AllowedOrigins = allowedOrigins
	devKey := env.ApplyDevelopmentDefaults()

	cfg, err := config.NewConfig(env)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("config")
	}

	logger := newLogger(cfg)
	if devKey {
		logger.Warn().Msg("using the built-in development signing key")
	}

	ctx := context.Background()

	db, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	dir, closeDir, err := newDirectory(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity directory")
	}
	defer closeDir()

	rooms := chat.NewRegistry(logger.With().Str("component", "rooms").Logger(), db, dir, cfg.StoreTimeout)
	if cfg.EnforceOrderMembership {
		rooms.WithOrderMembership(db)
	}
	messages := chat.NewMessageStore(logger.With().Str("component", "messages").Logger(), db, rooms, dir, cfg.StoreTimeout)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger.With().Str("component", "broker").Logger(), rooms, messages, statsUpdater)
	if err != nil {
		logger.Fatal().Err(err).Msg("new chat server")
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, rooms, messages, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	logger.Info().Msg("shutdown complete")
}
