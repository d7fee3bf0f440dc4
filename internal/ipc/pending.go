package ipc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout means no correlated reply arrived within the wait window.
var ErrTimeout = errors.New("ipc: request timed out")

// pending is a one-shot future. Resolve wins exactly once; later calls are
// dropped.
type pending struct {
	once sync.Once
	ch   chan Message
}

func newPending() *pending {
	return &pending{ch: make(chan Message, 1)}
}

func (p *pending) resolve(m Message) bool {
	done := false
	p.once.Do(func() {
		p.ch <- m
		done = true
	})
	return done
}

// pendingSet tracks in-flight request correlations by request id.
type pendingSet struct {
	mu  sync.Mutex
	set map[string]*pending
}

func newPendingSet() *pendingSet {
	return &pendingSet{set: make(map[string]*pending)}
}

// create registers a correlation for the request id, replacing any stale one.
func (s *pendingSet) create(requestID string) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := newPending()
	s.set[requestID] = p
	return p
}

// resolve completes the correlation for the request id. Reports whether a
// waiter existed and had not been resolved yet.
func (s *pendingSet) resolve(requestID string, m Message) bool {
	s.mu.Lock()
	p, ok := s.set[requestID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return p.resolve(m)
}

func (s *pendingSet) lookup(requestID string) (*pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.set[requestID]
	return p, ok
}

func (s *pendingSet) remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, requestID)
}

// wait blocks until the correlation resolves, the timeout fires, or ctx is
// cancelled. The correlation is removed in every outcome.
func (s *pendingSet) wait(ctx context.Context, requestID string, timeout time.Duration) (Message, error) {
	p, ok := s.lookup(requestID)
	if !ok {
		p = s.create(requestID)
	}
	defer s.remove(requestID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-p.ch:
		return m, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
