package browse

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/domain/activity"
)

// Session is one client's browse state: an activity collection store plus
// bookkeeping for idle eviction.
type Session struct {
	ID        uuid.UUID
	Store     *collection.Store[activity.Activity]
	CreatedAt time.Time

	lastSeen atomic.Int64
	streams  atomic.Int32
	done     chan struct{}
	once     sync.Once
}

func newSession(store *collection.Store[activity.Activity], now time.Time) *Session {
	s := &Session{
		ID:        uuid.New(),
		Store:     store,
		CreatedAt: now,
		done:      make(chan struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Touch marks the session as used.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// idle reports whether the session may be evicted. Sessions with an open
// stream are never idle.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	return s.streams.Load() == 0 && now.Sub(s.LastSeen()) > ttl
}

func (s *Session) close() {
	s.once.Do(func() {
		s.Store.Close()
		close(s.done)
	})
}
