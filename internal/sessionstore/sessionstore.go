// Package sessionstore holds every live Session in memory and prunes
// terminal sessions after a grace period, mirroring tarsy's
// WorkerPool's ticker-driven background sweep (pkg/queue/orphan.go's
// runOrphanDetection), generalized from "scan for abandoned DB rows"
// to "evict sessions that finished more than gracePeriod ago".
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/elisa-build/elisa/internal/models"
)

// Store holds every session for this process, keyed by id.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*models.Session
	gracePeriod time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Store. gracePeriod <= 0 uses a 5 minute default, per
// spec.md §3 "Destroyed after a grace period following terminal state."
func New(gracePeriod time.Duration) *Store {
	if gracePeriod <= 0 {
		gracePeriod = 5 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*models.Session),
		gracePeriod: gracePeriod,
		stopCh:      make(chan struct{}),
	}
}

// Put registers a new session.
func (s *Store) Put(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Get returns a session by id, or nil.
func (s *Store) Get(id string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Delete removes a session immediately (used by tests and explicit cleanup).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunPruner starts the background sweep on the given tick interval. It
// blocks until ctx is cancelled or Stop is called; run it in its own
// goroutine.
func (s *Store) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pruneOnce()
		}
	}
}

// Stop halts RunPruner. Idempotent.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) pruneOnce() {
	cutoff := time.Now().Add(-s.gracePeriod)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		state := sess.GetState()
		if state != models.SessionStateDone && state != models.SessionStateError {
			continue
		}
		sess.Mu.Lock()
		finishedAt := sess.FinishedAt
		sess.Mu.Unlock()
		if !finishedAt.IsZero() && finishedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
