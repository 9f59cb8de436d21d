// Package identity is the boundary to the external auth service. Components
// receive a Provider at construction instead of reading global session state.
package identity

import (
	"context"
	"errors"
	"sync"
)

var ErrUnauthenticated = errors.New("no authenticated user")

type Role string

const (
	RoleGuest Role = "guest"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

type Provider interface {
	CurrentUser(ctx context.Context) (Identity, error)
	// OnAuthChange registers fn for sign-in, sign-out and user switches. The
	// returned func removes the registration.
	OnAuthChange(fn func(Identity)) (unsubscribe func())
}

// Session is a Provider for one connection. It starts signed in as the given
// identity and notifies listeners when SetUser or SignOut change it.
type Session struct {
	mu        sync.Mutex
	current   Identity
	listeners map[int]func(Identity)
	nextID    int
}

func NewSession(id Identity) *Session {
	return &Session{
		current:   id,
		listeners: make(map[int]func(Identity)),
	}
}

func (s *Session) CurrentUser(context.Context) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.IsZero() {
		return Identity{}, ErrUnauthenticated
	}
	return s.current, nil
}

func (s *Session) OnAuthChange(fn func(Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) SetUser(id Identity) {
	s.mu.Lock()
	if s.current == id {
		s.mu.Unlock()
		return
	}
	s.current = id
	listeners := make([]func(Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
}

func (s *Session) SignOut() {
	s.SetUser(Identity{})
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && !id.IsZero()
}
