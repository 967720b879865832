//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// pollMultiplexer is the alternate Selector backend, used when epoll is
// unavailable. It delivers identical ReceiveEvents semantics to the epoll
// backend at O(n) cost per Wait instead of epoll's O(ready).
type pollMultiplexer struct {
	fds []unix.PollFd
	// index maps fd -> position in fds, so Update/Remove don't need a scan.
	index map[int]int
	out   []readyEvent
}

func (m *pollMultiplexer) init() error {
	m.index = make(map[int]int)
	return nil
}

func (m *pollMultiplexer) add(fd int, events SelectEvents) error {
	if _, exists := m.index[fd]; exists {
		return ErrDuplicateRegistration
	}
	m.index[fd] = len(m.fds)
	m.fds = append(m.fds, unix.PollFd{Fd: int32(fd), Events: selectEventsToPoll(events)})
	return nil
}

func (m *pollMultiplexer) modify(fd int, events SelectEvents) error {
	i, exists := m.index[fd]
	if !exists {
		return ErrNotRegistered
	}
	m.fds[i].Events = selectEventsToPoll(events)
	return nil
}

func (m *pollMultiplexer) remove(fd int) error {
	i, exists := m.index[fd]
	if !exists {
		return ErrNotRegistered
	}
	last := len(m.fds) - 1
	m.fds[i] = m.fds[last]
	m.index[int(m.fds[i].Fd)] = i
	m.fds = m.fds[:last]
	delete(m.index, fd)
	return nil
}

func (m *pollMultiplexer) wait(timeout Duration, capHint int) ([]readyEvent, error) {
	n, err := unix.Poll(m.fds, durationToMillis(timeout))
	if err != nil {
		return nil, err
	}
	m.out = m.out[:0]
	if n == 0 {
		return m.out, nil
	}
	for i := range m.fds {
		revents := m.fds[i].Revents
		if revents == 0 {
			continue
		}
		m.fds[i].Revents = 0
		m.out = append(m.out, readyEvent{
			fd:     int(m.fds[i].Fd),
			events: pollToReceiveEvents(revents),
		})
		if len(m.out) >= capHint {
			break
		}
	}
	return m.out, nil
}

func (m *pollMultiplexer) close() error { return nil }

func selectEventsToPoll(events SelectEvents) int16 {
	var e int16
	if events.Readable() {
		e |= unix.POLLIN
	}
	if events.Writable() {
		e |= unix.POLLOUT
	}
	return e
}

func pollToReceiveEvents(revents int16) ReceiveEvents {
	var e ReceiveEvents
	if revents&unix.POLLIN != 0 {
		e |= ReceiveRead
	}
	if revents&unix.POLLOUT != 0 {
		e |= ReceiveWrite
	}
	if revents&unix.POLLRDHUP != 0 {
		e |= ReceivePeerClosed
	}
	if revents&unix.POLLERR != 0 {
		e |= ReceiveError
	}
	if revents&unix.POLLHUP != 0 {
		e |= ReceiveHangup
	}
	return e
}
