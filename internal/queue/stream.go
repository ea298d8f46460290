package queue

import "sync"

// Stream is the delivery channel plumbing shared by drivers. A driver runs a
// single pump goroutine that owns Send and Finish; Stop may be called from
// anywhere to ask the pump to exit.
type Stream struct {
	ch   chan Delivery
	done chan struct{}
	stop sync.Once

	mu  sync.Mutex
	err error
}

func NewStream() *Stream {
	return &Stream{
		ch:   make(chan Delivery),
		done: make(chan struct{}),
	}
}

func (s *Stream) Deliveries() <-chan Delivery { return s.ch }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once Stop has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream) Stop() {
	s.stop.Do(func() { close(s.done) })
}

// Send hands d to the consumer. It returns false when the stream was stopped first.
func (s *Stream) Send(d Delivery) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- d:
		return true
	case <-s.done:
		return false
	}
}

// Finish records why the pump ended and closes Deliveries. Pump only.
func (s *Stream) Finish(err error) {
	s.mu.Lock()
	if s.err == nil && err != nil && !s.Stopped() {
		s.err = err
	}
	s.mu.Unlock()
	close(s.ch)
}
