package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// Scope owns background work tied to one host lifecycle. Closing it cancels the
// context handed to every goroutine and drops every pending timer.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[*timer]struct{}
	closed bool
}

// NewScope creates a scope derived from parent
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*timer]struct{}),
	}
}

// Context returns the scope context
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go runs fn on a new goroutine. Returns false if the scope is already closed.
func (s *Scope) Go(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithComponent("scope").Error().
					Interface("panic", r).
					Msg("Recovered panic in background task")
			}
		}()
		fn(s.ctx)
	}()
	return true
}

// AfterFunc runs fn on its own goroutine after d unless the scope closes first
func (s *Scope) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.stopped = true
		return t
	}
	s.timers[t] = struct{}{}
	s.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		if t.fire() {
			fn()
		}
	})
	return t
}

// Close cancels the scope. Safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	timers := s.timers
	s.timers = make(map[*timer]struct{})
	s.mu.Unlock()

	for t := range timers {
		t.Stop()
	}
	s.cancel()
}

// Wait blocks until every goroutine started with Go has returned
func (s *Scope) Wait() {
	s.wg.Wait()
}
