package cache

import "sync"

// AuthEventKind is a login or logout
type AuthEventKind string

const (
	AuthEventLogin  AuthEventKind = "login"
	AuthEventLogout AuthEventKind = "logout"
)

type AuthEvent struct {
	Kind   AuthEventKind
	UserID string
}

// AuthEvents fans login and logout notifications out to listeners
type AuthEvents struct {
	mu        sync.RWMutex
	listeners []func(AuthEvent)
}

func NewAuthEvents() *AuthEvents {
	return &AuthEvents{}
}

// Subscribe registers fn for every future event
func (a *AuthEvents) Subscribe(fn func(AuthEvent)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Publish calls every listener synchronously
func (a *AuthEvents) Publish(ev AuthEvent) {
	a.mu.RLock()
	listeners := append([]func(AuthEvent){}, a.listeners...)
	a.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
