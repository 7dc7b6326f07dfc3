package server

import (
	"context"

	"github.com/npezzotti/go-gigchat/internal/chat"
	"github.com/npezzotti/go-gigchat/internal/presence"
	"github.com/npezzotti/go-gigchat/internal/stats"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/rs/zerolog"
)

// ChatServer is the realtime broker. Its Run loop is the only writer of
// presence, so joins and disconnects are applied one at a time. Store
// calls happen on each client's read goroutine and never block the loop.
type ChatServer struct {
	log            zerolog.Logger
	rooms          *chat.Registry
	messages       *chat.MessageStore
	presence       *presence.Tracker[*Client]
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	registerChan   chan *Client
	deRegisterChan chan *Client
	identifyChan   chan *identifyReq
	stop           chan stopReq
	done           chan struct{}
}

type identifyReq struct {
	client *Client
	userId string
	done   chan struct{}
}

type stopReq struct {
	done chan struct{}
}

func NewChatServer(logger zerolog.Logger, rooms *chat.Registry, messages *chat.MessageStore, su stats.StatsProvider) (*ChatServer, error) {
	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.OnlineUsers)
	su.RegisterCounter(stats.MessagesSent)
	su.RegisterCounter(stats.DeliveryDrops)
	su.RegisterCounter(stats.AuthRejections)

	return &ChatServer{
		log:            logger,
		rooms:          rooms,
		messages:       messages,
		presence:       presence.NewTracker[*Client](),
		stats:          su,
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		identifyChan:   make(chan *identifyReq),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
		case req := <-cs.identifyChan:
			cs.bindUser(req.client, req.userId)
			close(req.done)
		case req := <-cs.stop:
			cs.log.Info().Int("clients", len(cs.clients)).Msg("closing client connections")
			for c := range cs.clients {
				c.stopClient()
			}

			close(cs.done)
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Debug().Str("auth_user_id", c.authUserId).Msg("client connected")

	c.queueMessage(onlineUsersEvent(cs.presence.Online()))
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveConnections)

	userId, removed := cs.presence.Disconnect(c)
	if !removed {
		cs.log.Debug().Str("auth_user_id", c.authUserId).Msg("ignoring disconnect of unregistered connection")
		return
	}

	cs.stats.Decr(stats.OnlineUsers)
	cs.log.Info().Str("user_id", userId).Msg("user went offline")
	cs.broadcastOnline()
}

func (cs *ChatServer) bindUser(c *Client, userId string) {
	before := cs.presence.Len()
	prev, replaced := cs.presence.Join(userId, c)
	c.setIdentified(userId)

	if replaced {
		cs.log.Info().Str("user_id", userId).Msg("new connection supersedes previous session")
		prev.revoke()
		if !prev.queueMessage(ErrSessionReplaced()) {
			prev.stopClient()
		}
	}

	switch after := cs.presence.Len(); {
	case after > before:
		cs.stats.Incr(stats.OnlineUsers)
	case after < before:
		cs.stats.Decr(stats.OnlineUsers)
	}

	cs.log.Info().Str("user_id", userId).Msg("user online")
	cs.broadcastOnline()
}

// broadcastOnline sends the full online snapshot to every connection.
func (cs *ChatServer) broadcastOnline() {
	ev := onlineUsersEvent(cs.presence.Online())
	for c := range cs.clients {
		if !c.queueMessage(ev) {
			cs.stats.Incr(stats.DeliveryDrops)
		}
	}
}

// RegisterClient hands a new connection to the loop. It returns false
// once the server has shut down.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// identify binds c to userId and waits until presence reflects it.
func (cs *ChatServer) identify(c *Client, userId string) bool {
	req := &identifyReq{client: c, userId: userId, done: make(chan struct{})}
	select {
	case cs.identifyChan <- req:
	case <-cs.done:
		return false
	}

	<-req.done
	return true
}

// Online returns the ids of connected users in ascending order.
func (cs *ChatServer) Online() []string {
	return cs.presence.Online()
}

// Deliver pushes a persisted message to every other participant of room
// that is online. It returns the number of connections it reached.
func (cs *ChatServer) Deliver(msg types.Message, room types.Room) int {
	cs.stats.Incr(stats.MessagesSent)

	delivered := 0
	for _, userId := range room.ParticipantIds {
		if userId == msg.SenderId {
			continue
		}

		c, ok := cs.presence.Lookup(userId)
		if !ok {
			continue
		}

		if !c.queueMessage(receiveMessageEvent(msg)) {
			cs.stats.Incr(stats.DeliveryDrops)
			cs.log.Warn().Str("user_id", userId).Str("message_id", msg.Id).Msg("dropped message delivery")
			continue
		}
		delivered++
	}

	return delivered
}

// Shutdown closes every connection and stops the loop.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
