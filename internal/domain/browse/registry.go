package browse

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
)

const (
	DefaultIdleTTL     = 30 * time.Minute
	DefaultMaxSessions = 10000
)

// SessionTracker is notified when sessions open and close.
type SessionTracker interface {
	SessionOpened()
	SessionClosed(evicted bool)
}

type noopTracker struct{}

func (noopTracker) SessionOpened()     {}
func (noopTracker) SessionClosed(bool) {}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	IdleTTL     time.Duration
	MaxSessions int
	// StoreOptions are applied to every session store.
	StoreOptions []collection.Option
	Tracker      SessionTracker
}

// Registry owns the in-memory browse sessions.
type Registry struct {
	fetcher  collection.Fetcher[activity.Activity]
	idleTTL  time.Duration
	max      int
	storeOps []collection.Option
	tracker  SessionTracker
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates a registry whose sessions load pages through fetcher.
func NewRegistry(fetcher collection.Fetcher[activity.Activity], cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Tracker == nil {
		cfg.Tracker = noopTracker{}
	}
	return &Registry{
		fetcher:  fetcher,
		idleTTL:  cfg.IdleTTL,
		max:      cfg.MaxSessions,
		storeOps: cfg.StoreOptions,
		tracker:  cfg.Tracker,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create opens a new idle session.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	sess := newSession(collection.NewStore[activity.Activity](r.fetcher, r.storeOps...), r.now())
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.tracker.SessionOpened()
	logger.LogDebug(ctx, "browse session opened", "session_id", sess.ID.String())
	return sess, nil
}

// Get returns a session and marks it as used.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Touch(r.now())
	return sess, nil
}

// Close removes and closes a session.
func (r *Registry) Close(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.close()
	r.tracker.SessionClosed(false)
	logger.LogDebug(ctx, "browse session closed", "session_id", id.String())
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle closes every session unused for longer than the idle TTL and
// returns how many were closed.
func (r *Registry) EvictIdle() int {
	now := r.now()

	r.mu.Lock()
	var evicted []*Session
	for id, sess := range r.sessions {
		if sess.idle(now, r.idleTTL) {
			delete(r.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range evicted {
		sess.close()
		r.tracker.SessionClosed(true)
	}
	return len(evicted)
}

// CloseAll closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
		r.tracker.SessionClosed(false)
	}
}
