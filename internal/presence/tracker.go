// Package presence tracks which users hold an open realtime connection.
//
// A user has at most one active connection. Joining again from a new
// connection supersedes the old one, and a disconnect only removes the
// entry if it still points at that exact connection.
package presence

import (
	"slices"
	"sync"
)

type Tracker[C comparable] struct {
	mu     sync.RWMutex
	byUser map[string]C
	byConn map[C]string
}

func NewTracker[C comparable]() *Tracker[C] {
	return &Tracker[C]{
		byUser: make(map[string]C),
		byConn: make(map[C]string),
	}
}

// Join binds userId to conn. If userId was bound to a different
// connection, that connection is returned with replaced set.
func (t *Tracker[C]) Join(userId string, conn C) (prev C, replaced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// a connection rebinding to another user drops its old identity
	if oldUser, ok := t.byConn[conn]; ok && oldUser != userId {
		delete(t.byUser, oldUser)
	}

	prev, replaced = t.byUser[userId]
	if replaced {
		if prev == conn {
			var zero C
			return zero, false
		}
		delete(t.byConn, prev)
	}

	t.byUser[userId] = conn
	t.byConn[conn] = userId

	return prev, replaced
}

// Disconnect removes conn. It reports the user it was bound to, or false
// if conn was never joined or has already been superseded.
func (t *Tracker[C]) Disconnect(conn C) (userId string, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	userId, removed = t.byConn[conn]
	if !removed {
		return "", false
	}

	delete(t.byConn, conn)
	if cur, ok := t.byUser[userId]; ok && cur == conn {
		delete(t.byUser, userId)
	}

	return userId, true
}

func (t *Tracker[C]) Lookup(userId string) (C, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conn, ok := t.byUser[userId]
	return conn, ok
}

// UserOf returns the user conn is currently bound to.
func (t *Tracker[C]) UserOf(conn C) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	userId, ok := t.byConn[conn]
	return userId, ok
}

// Online returns the ids of every online user in ascending order.
func (t *Tracker[C]) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.byUser))
	for id := range t.byUser {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Conns returns every active connection.
func (t *Tracker[C]) Conns() []C {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]C, 0, len(t.byUser))
	for _, c := range t.byUser {
		conns = append(conns, c)
	}

	return conns
}

func (t *Tracker[C]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser)
}
