// Package session holds the signed-in user shared between components.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
)

// ErrNotFound is returned when a session id has no user.
var ErrNotFound = errors.New("session: not found")

// Backend stores users by session id.
type Backend interface {
	Put(ctx context.Context, sid string, user client.User) error
	Get(ctx context.Context, sid string) (client.User, error)
	Delete(ctx context.Context, sid string) error
}

// Watcher reports the ids of sessions written by any process sharing the
// backend. The channel closes when ctx is cancelled.
type Watcher interface {
	Subscribe(ctx context.Context) <-chan string
}

// Watch calls fn for each updated session id until ctx is done.
func Watch(ctx context.Context, w Watcher, fn func(sid string)) {
	for sid := range w.Subscribe(ctx) {
		fn(sid)
	}
}

// Handle binds a Backend to one session id.
type Handle struct {
	backend Backend
	sid     string
}

func Bind(b Backend, sid string) Handle {
	return Handle{backend: b, sid: sid}
}

// Update replaces the session's user.
func (h Handle) Update(ctx context.Context, user client.User) error {
	return h.backend.Put(ctx, h.sid, user)
}

// Current returns the session's user or ErrNotFound.
func (h Handle) Current(ctx context.Context) (client.User, error) {
	return h.backend.Get(ctx, h.sid)
}

func (h Handle) Clear(ctx context.Context) error {
	return h.backend.Delete(ctx, h.sid)
}

// Memory is an in-process Backend. Slow subscribers miss updates rather
// than block writers.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]client.User
	subscribers map[chan string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]client.User),
		subscribers: make(map[chan string]struct{}),
	}
}

func (m *Memory) Put(_ context.Context, sid string, user client.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[sid] = user
	for ch := range m.subscribers {
		select {
		case ch <- sid:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) <-chan string {
	ch := make(chan string, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subscribers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

func (m *Memory) Get(_ context.Context, sid string) (client.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[sid]
	if !ok {
		return client.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, sid)
	return nil
}
