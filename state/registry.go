package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Registry holds every live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options

	startedAt time.Time
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		opts:      opts.withDefaults(),
		startedAt: time.Now(),
	}
}

// Create registers a new session.
func (r *Registry) Create(clientSeed string) (*Session, error) {
	s, err := NewSession(clientSeed, r.opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startedAt)
}
