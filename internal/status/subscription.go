package status

import "sync"

// Subscription delivers statuses through C. Values are buffered in an unbounded
// mailbox and forwarded by a dedicated goroutine, so order is preserved.
type Subscription struct {
	store *Store
	out   chan Status

	mu      sync.Mutex
	pending []Status
	closed  bool
	signal  chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

func newSubscription(store *Store) *Subscription {
	sub := &Subscription{
		store:  store,
		out:    make(chan Status),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go sub.forward()
	return sub
}

// C returns the delivery channel. It is closed after Close.
func (sub *Subscription) C() <-chan Status {
	return sub.out
}

// Close unsubscribes and releases the forwarding goroutine
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.store.remove(sub)

		sub.mu.Lock()
		sub.closed = true
		sub.pending = nil
		sub.mu.Unlock()

		close(sub.done)
	})
}

func (sub *Subscription) push(st Status) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.pending = append(sub.pending, st)
	sub.mu.Unlock()

	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *Subscription) forward() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.pending) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.signal:
				continue
			case <-sub.done:
				return
			}
		}
		next := sub.pending[0]
		sub.pending = sub.pending[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- next:
		case <-sub.done:
			return
		}
	}
}
