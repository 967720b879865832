//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollMultiplexer is the primary Selector backend.
type epollMultiplexer struct {
	epfd int
	raw  []unix.EpollEvent
	out  []readyEvent
}

func (m *epollMultiplexer) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	m.epfd = fd
	return nil
}

func (m *epollMultiplexer) add(fd int, events SelectEvents) error {
	ev := unix.EpollEvent{Events: selectEventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (m *epollMultiplexer) modify(fd int, events SelectEvents) error {
	ev := unix.EpollEvent{Events: selectEventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (m *epollMultiplexer) remove(fd int) error {
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (m *epollMultiplexer) wait(timeout Duration, capHint int) ([]readyEvent, error) {
	if len(m.raw) < capHint {
		m.raw = make([]unix.EpollEvent, capHint)
	}
	n, err := unix.EpollWait(m.epfd, m.raw[:capHint], durationToMillis(timeout))
	if err != nil {
		return nil, err
	}
	if cap(m.out) < n {
		m.out = make([]readyEvent, n)
	}
	m.out = m.out[:n]
	for i := 0; i < n; i++ {
		m.out[i] = readyEvent{
			fd:     int(m.raw[i].Fd),
			events: epollToReceiveEvents(m.raw[i].Events),
		}
	}
	return m.out, nil
}

func (m *epollMultiplexer) close() error {
	return unix.Close(m.epfd)
}

// durationToMillis converts a Duration into the millisecond timeout epoll_wait
// and poll expect, with -1 meaning "block indefinitely" reserved for a
// negative Duration (not produced by this package, but tolerated).
func durationToMillis(d Duration) int {
	if d < 0 {
		return -1
	}
	ms := d.Microseconds() / 1000
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

func selectEventsToEpoll(events SelectEvents) uint32 {
	var e uint32
	if events.Readable() {
		e |= unix.EPOLLIN
	}
	if events.Writable() {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToReceiveEvents(native uint32) ReceiveEvents {
	var e ReceiveEvents
	if native&unix.EPOLLIN != 0 {
		e |= ReceiveRead
	}
	if native&unix.EPOLLOUT != 0 {
		e |= ReceiveWrite
	}
	if native&unix.EPOLLRDHUP != 0 {
		e |= ReceivePeerClosed
	}
	if native&unix.EPOLLERR != 0 {
		e |= ReceiveError
	}
	if native&unix.EPOLLHUP != 0 {
		e |= ReceiveHangup
	}
	return e
}
