// Package escalate drains the persisted escalation queue against the ranking
// oracle: a pausable, bounded-concurrency dispatcher plus the reducer that
// applies oracle suggestions back onto match results.
package escalate

import (
	"context"
	"sync"
	"time"
)

// DispatcherState holds the pause flag for one collection's dispatcher.
// It is owned by the dispatcher instance rather than looked up from any
// ambient registry; share the pointer with whatever needs pause control.
type DispatcherState struct {
	mu           sync.Mutex
	paused       bool
	pollInterval time.Duration
}

// NewDispatcherState creates an unpaused state with a 1-second poll interval.
func NewDispatcherState() *DispatcherState {
	return &DispatcherState{pollInterval: time.Second}
}

// Pause sets the pause flag. No new oracle call starts until Resume.
func (s *DispatcherState) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume clears the pause flag.
func (s *DispatcherState) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports the current flag value.
func (s *DispatcherState) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// WaitIfPaused blocks with a cooperative poll while the flag is set. It
// returns true once the flag is clear, or false when the context is done and
// the caller should abandon its remaining work.
func (s *DispatcherState) WaitIfPaused(ctx context.Context) bool {
	for {
		if !s.Paused() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.pollInterval):
		}
	}
}
