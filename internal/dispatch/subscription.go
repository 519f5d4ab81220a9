package dispatch

import "sync"

// Subscription is an unbounded FIFO of updates. A pump goroutine moves queued
// updates onto the Updates channel at the pace the consumer reads them.
type Subscription struct {
	ID string

	mu     sync.Mutex
	queue  []Update
	signal chan struct{}

	out       chan Update
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(id string) *Subscription {
	s := &Subscription{
		ID:     id,
		signal: make(chan struct{}, 1),
		out:    make(chan Update),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// Updates returns the delivery channel. It is closed when the subscription is
// unsubscribed or the dispatcher closes.
func (s *Subscription) Updates() <-chan Update { return s.out }

// Pending returns the number of queued, undelivered updates.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) enqueue(u Update) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Update{}, false
	}
	u := s.queue[0]
	s.queue[0] = Update{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return u, true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		u, ok := s.next()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- u:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()
	})
}
