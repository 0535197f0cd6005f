// Package status holds the upload status of the overlay as a single observable value.
package status

import (
	"fmt"
	"sync"
)

// Kind identifies the phase of an upload cycle
type Kind int

const (
	Idle Kind = iota
	InProgress
	Succeeded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is one value of the upload state machine. Payload is set on Succeeded,
// Message and Code on Failed. Cycle numbers the upload cycle the value belongs to.
type Status struct {
	Kind    Kind   `json:"kind"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Cycle   uint64 `json:"cycle"`
}

// NewIdle returns an Idle status for the given cycle
func NewIdle(cycle uint64) Status {
	return Status{Kind: Idle, Cycle: cycle}
}

// NewInProgress returns an InProgress status for the given cycle
func NewInProgress(cycle uint64) Status {
	return Status{Kind: InProgress, Cycle: cycle}
}

// NewSucceeded returns a Succeeded status carrying payload
func NewSucceeded(cycle uint64, payload any) Status {
	return Status{Kind: Succeeded, Payload: payload, Cycle: cycle}
}

// NewFailed returns a Failed status carrying message and code
func NewFailed(cycle uint64, message string, code int) Status {
	return Status{Kind: Failed, Message: message, Code: code, Cycle: cycle}
}

// Terminal reports whether s ends a cycle
func (s Status) Terminal() bool {
	return s.Kind == Succeeded || s.Kind == Failed
}

func (s Status) String() string {
	switch s.Kind {
	case Failed:
		return fmt.Sprintf("failed(%q, %d)#%d", s.Message, s.Code, s.Cycle)
	default:
		return fmt.Sprintf("%s#%d", s.Kind, s.Cycle)
	}
}

// Store holds exactly one live status and fans every change out to subscribers.
// Subscribers receive the current value on subscribe and then every later value in
// emission order; a slow subscriber never blocks Set or other subscribers.
type Store struct {
	mu      sync.Mutex
	current Status
	subs    map[*Subscription]struct{}
	closed  bool
}

// NewStore returns a store holding Idle for cycle 0
func NewStore() *Store {
	return &Store{
		current: NewIdle(0),
		subs:    make(map[*Subscription]struct{}),
	}
}

// Get returns the current status
func (s *Store) Get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set replaces the current status and notifies subscribers
func (s *Store) Set(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(st)
}

func (s *Store) setLocked(st Status) {
	s.current = st
	for sub := range s.subs {
		sub.push(st)
	}
}

// TryBegin atomically moves the store to InProgress for the next cycle unless a
// cycle is already in progress. Returns the new cycle number.
func (s *Store) TryBegin() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Kind == InProgress {
		return 0, false
	}
	cycle := s.current.Cycle + 1
	s.setLocked(NewInProgress(cycle))
	return cycle, true
}

// CompareAndSet sets next only when the current status matches pred
func (s *Store) CompareAndSet(pred func(Status) bool, next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !pred(s.current) {
		return false
	}
	s.setLocked(next)
	return true
}

// Subscribe registers a new subscriber. The current value is delivered first.
func (s *Store) Subscribe() *Subscription {
	sub := newSubscription(s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return sub
	}
	s.subs[sub] = struct{}{}
	sub.push(s.current)
	s.mu.Unlock()

	return sub
}

// Close ends every subscription. Later subscriptions start closed; Get and Set
// keep working.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (s *Store) remove(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Reader is the read-only view of a Store
type Reader interface {
	Get() Status
	Subscribe() *Subscription
}
