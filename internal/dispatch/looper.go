// Package dispatch provides the two execution contexts the SDK runs on: a single
// UI looper that owns window, gesture and draw work, and cancellable background
// scopes for file and network I/O.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// ErrLooperStopped is returned when work is posted to a looper that has quit
var ErrLooperStopped = errors.New("looper stopped")

// Timer is a pending delayed callback
type Timer interface {
	// Stop prevents the callback from running. Returns false if it already ran
	// or was already stopped.
	Stop() bool
}

// Scheduler runs a callback after a delay
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Looper executes posted functions one at a time, in order, on a dedicated goroutine
type Looper struct {
	name string

	mu      sync.Mutex
	queue   []func()
	timers  map[*timer]struct{}
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewLooper creates and starts a looper
func NewLooper(name string) *Looper {
	l := &Looper{
		name:   name,
		timers: make(map[*timer]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Looper) loop() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			if l.stopped {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("looper").Error().
				Str("looper", l.name).
				Interface("panic", r).
				Msg("Recovered panic in looper task")
		}
	}()
	fn()
}

// Post queues fn for execution. Returns false if the looper has quit.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the looper and waits for its result. It must not be called from
// the looper goroutine itself.
func (l *Looper) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	ok := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic on %s looper: %v", l.name, r)
			}
		}()
		result <- fn()
	})
	if !ok {
		return ErrLooperStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The looper may have drained our task right before exiting
		select {
		case err := <-result:
			return err
		default:
			return ErrLooperStopped
		}
	}
}

// AfterFunc posts fn to the looper once d has elapsed. Timers still pending when the
// looper quits never fire.
func (l *Looper) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		t.stopped = true
		return t
	}
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		if t.fire() {
			l.Post(fn)
		}
	})
	return t
}

// Quit stops accepting work, cancels pending timers and lets queued tasks drain
func (l *Looper) Quit() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	timers := l.timers
	l.timers = make(map[*timer]struct{})
	l.mu.Unlock()

	for t := range timers {
		t.Stop()
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the looper goroutine has exited
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// timer guards a time.Timer so that Stop and fire race safely
type timer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
	fired   bool
}

func (t *timer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.fired = true
	return true
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
	return true
}
