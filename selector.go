//go:build linux

package reactor

import (
	"sync"
)

// SelectorType names a concrete Selector backend.
type SelectorType int

const (
	// SelectorEpoll selects the epoll(7)-based backend (default, primary).
	SelectorEpoll SelectorType = iota
	// SelectorPoll selects the poll(2)-based backend (alternate, used when
	// epoll is unavailable).
	SelectorPoll
)

func (t SelectorType) String() string {
	switch t {
	case SelectorPoll:
		return "poll"
	default:
		return "epoll"
	}
}

const (
	initialReadyCap = 256
	maxReadyCap     = 65536
)

// readyEvent is one (fd, events) pair produced by a multiplexer.wait call.
type readyEvent struct {
	fd     int
	events ReceiveEvents
}

// multiplexer is the narrow syscall-facing interface a Selector backend
// must implement. It is invoked only from the owning loop's goroutine.
type multiplexer interface {
	init() error
	add(fd int, events SelectEvents) error
	modify(fd int, events SelectEvents) error
	remove(fd int) error
	// wait blocks up to timeout and returns a slice of ready events, owned
	// by the multiplexer and valid until the next call to wait. cap bounds
	// how many events may be returned in one call.
	wait(timeout Duration, cap int) ([]readyEvent, error)
	close() error
}

// Selector maintains the kernel-side registration of a set of channels and
// produces batches of ready channels. All operations are invoked only from
// the owning loop's goroutine; this type performs no internal
// synchronization beyond what is needed to satisfy that contract defensively
// (registrationMu guards the channel map against accidental misuse, not
// against the concurrency the design forbids).
type Selector struct {
	mux      multiplexer
	channels map[int]Channel

	cap   int
	ready []readyEvent

	registrationMu sync.Mutex
}

// NewSelector constructs a Selector backed by the requested multiplexer.
func NewSelector(kind SelectorType) (*Selector, error) {
	var mux multiplexer
	switch kind {
	case SelectorPoll:
		mux = &pollMultiplexer{}
	default:
		mux = &epollMultiplexer{}
	}
	if err := mux.init(); err != nil {
		return nil, err
	}
	return &Selector{
		mux:      mux,
		channels: make(map[int]Channel),
		cap:      initialReadyCap,
	}, nil
}

// Add registers channel with the requested interest set. Fails on a
// duplicate registration, which the caller should treat as fatal.
func (s *Selector) Add(ch Channel, events SelectEvents) error {
	s.registrationMu.Lock()
	defer s.registrationMu.Unlock()

	fd := ch.FD()
	if _, exists := s.channels[fd]; exists {
		return ErrDuplicateRegistration
	}
	if err := s.mux.add(fd, events); err != nil {
		return err
	}
	s.channels[fd] = ch
	ch.setSelector(s)
	return nil
}

// Update changes the interest set of an already-registered channel.
func (s *Selector) Update(ch Channel, events SelectEvents) error {
	s.registrationMu.Lock()
	defer s.registrationMu.Unlock()

	if _, exists := s.channels[ch.FD()]; !exists {
		return ErrNotRegistered
	}
	return s.mux.modify(ch.FD(), events)
}

// Remove deregisters channel.
func (s *Selector) Remove(ch Channel) error {
	s.registrationMu.Lock()
	defer s.registrationMu.Unlock()

	fd := ch.FD()
	if _, exists := s.channels[fd]; !exists {
		return ErrNotRegistered
	}
	if err := s.mux.remove(fd); err != nil {
		return err
	}
	delete(s.channels, fd)
	ch.setSelector(nil)
	return nil
}

// Contains reports whether channel is currently registered.
func (s *Selector) Contains(ch Channel) bool {
	s.registrationMu.Lock()
	defer s.registrationMu.Unlock()
	_, ok := s.channels[ch.FD()]
	return ok
}

// Wait blocks up to timeout for readiness. On return, Size reports the
// number of ready entries and Get(i) returns each (channel, events) pair.
// Interrupt-class OS errors yield zero ready entries and a nil error;
// other errors are returned as-is.
func (s *Selector) Wait(timeout Duration) error {
	events, err := s.mux.wait(timeout, s.cap)
	if err != nil {
		e := FromError(err)
		if e.IsInterrupt() {
			s.ready = s.ready[:0]
			return nil
		}
		return e.AsError()
	}
	s.ready = events

	if len(events) >= s.cap && s.cap < maxReadyCap {
		s.cap *= 2
		if s.cap > maxReadyCap {
			s.cap = maxReadyCap
		}
	}
	return nil
}

// Size reports the number of ready entries from the most recent Wait.
func (s *Selector) Size() int { return len(s.ready) }

// Get returns the i-th ready (channel, events) pair from the most recent
// Wait. The channel may be nil if it was deregistered between the
// multiplexer returning the event and Get being called.
func (s *Selector) Get(i int) (Channel, ReceiveEvents) {
	re := s.ready[i]
	s.registrationMu.Lock()
	ch := s.channels[re.fd]
	s.registrationMu.Unlock()
	return ch, re.events
}

// Close releases the underlying multiplexer handle.
func (s *Selector) Close() error {
	return s.mux.close()
}
