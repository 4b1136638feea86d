package memory

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/makeasinger/edusong/internal/telemetry"
	"github.com/makeasinger/edusong/internal/wizard"
)

// SessionRepository keeps wizard sessions in memory. Sessions expire after
// a period without access; an expired session is reset so that any
// generation still running for it is cancelled.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl, cleanup time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanup <= 0 {
		cleanup = ttl / 6
	}

	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(_ string, v interface{}) {
		if m, ok := v.(*wizard.Machine); ok {
			m.Reset()
		}
		telemetry.ActiveSessions.Dec()
	})

	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(m *wizard.Machine) {
	if _, found := r.cache.Get(m.ID()); !found {
		telemetry.ActiveSessions.Inc()
	}
	r.cache.Set(m.ID(), m, cache.DefaultExpiration)
}

// Get returns the session and extends its lifetime
func (r *SessionRepository) Get(sessionID string) (*wizard.Machine, bool) {
	x, found := r.cache.Get(sessionID)
	if !found {
		return nil, false
	}
	m := x.(*wizard.Machine)
	r.cache.Set(sessionID, m, cache.DefaultExpiration)
	return m, true
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

// Count returns the number of stored sessions, including expired ones not yet purged
func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// Flush resets and removes every session
func (r *SessionRepository) Flush() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
