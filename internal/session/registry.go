// Package session tracks which contacts currently have the bot engaged.
//
// A contact is active exactly while it has an entry in the Registry. Each
// entry owns an inactivity timer; any inbound message from the contact
// rearms it, and expiry removes the entry. Session state is in-memory only
// and does not survive a restart.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lromero/chatvault/internal/redis"
)

// Session is one contact's active engagement.
type Session struct {
	ContactID string
	StartedAt time.Time

	// timer is cancelled before being replaced or on destruction. gen
	// identifies the currently armed timer so a stale callback that
	// already fired while a refresh was in flight becomes a no-op.
	timer *time.Timer
	gen   uint64
}

// Registry owns all active sessions. All methods are safe for concurrent
// use; operations on the same contact are mutually exclusive.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	onExpire func(contactID string)
	stopped  bool
}

// NewRegistry creates a registry with the given inactivity TTL. onExpire is
// invoked (outside the registry lock) each time a session times out; it may
// be nil.
func NewRegistry(ttl time.Duration, onExpire func(contactID string)) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		onExpire: onExpire,
	}
}

// TTL returns the inactivity timeout.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// IsActive reports whether the contact has a session.
func (r *Registry) IsActive(contactID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[contactID]
	return ok
}

// Activate creates a session for the contact and arms its inactivity timer.
// No-op returning false if the contact is already active.
func (r *Registry) Activate(contactID string) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.sessions[contactID]; ok {
		r.mu.Unlock()
		return false
	}

	s := &Session{ContactID: contactID, StartedAt: time.Now(), gen: 1}
	s.timer = r.armLocked(contactID, s.gen)
	r.sessions[contactID] = s
	r.mu.Unlock()

	log.Printf("[Session] Activated: %s (ttl %s)", contactID, r.ttl)
	redis.MarkSession(context.Background(), contactID, r.ttl)
	return true
}

// Refresh cancels the contact's timer and arms a new one. No-op returning
// false if the contact has no session; a refresh never creates one.
func (r *Registry) Refresh(contactID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[contactID]
	if !ok || r.stopped {
		r.mu.Unlock()
		return false
	}
	s.timer.Stop()
	s.gen++
	s.timer = r.armLocked(contactID, s.gen)
	r.mu.Unlock()

	redis.MarkSession(context.Background(), contactID, r.ttl)
	return true
}

// Deactivate cancels the contact's timer and removes the session.
// Idempotent; returns whether a session was removed.
func (r *Registry) Deactivate(contactID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[contactID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	s.timer.Stop()
	delete(r.sessions, contactID)
	r.mu.Unlock()

	log.Printf("[Session] Deactivated: %s", contactID)
	redis.ClearSession(context.Background(), contactID)
	return true
}

// ActiveContacts returns the IDs of all contacts with a session.
func (r *Registry) ActiveContacts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	contacts := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		contacts = append(contacts, id)
	}
	return contacts
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop cancels all timers and rejects further activations. Used on
// shutdown so no expiry callback fires into torn-down components.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, s := range r.sessions {
		s.timer.Stop()
		delete(r.sessions, id)
	}
}

// armLocked arms an inactivity timer for the given generation. Caller must
// hold r.mu.
func (r *Registry) armLocked(contactID string, gen uint64) *time.Timer {
	return time.AfterFunc(r.ttl, func() {
		r.expire(contactID, gen)
	})
}

// expire is the timer callback. The generation check makes a stale timer
// (already replaced by a refresh racing the callback) a no-op, so a
// session is never deactivated twice and a refreshed session is never
// killed by its predecessor's timer.
func (r *Registry) expire(contactID string, gen uint64) {
	r.mu.Lock()
	s, ok := r.sessions[contactID]
	if !ok || s.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, contactID)
	r.mu.Unlock()

	log.Printf("[Session] Deactivated after inactivity: %s", contactID)
	redis.ClearSession(context.Background(), contactID)
	if r.onExpire != nil {
		r.onExpire(contactID)
	}
}
