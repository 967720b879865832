//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// EventChannel wraps an in-process wake-up fd (a Linux eventfd) used to
// interrupt a Selector.Wait from another thread. Writing any byte makes the
// fd readable; reading drains it. Its dispatch calls a single on-wake
// closure.
type EventChannel struct {
	channelBase
	fd     int
	onWake func()
}

// NewEventChannel creates a non-blocking eventfd-backed wake channel.
func NewEventChannel() (*EventChannel, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &EventChannel{fd: fd}, nil
}

// FD implements Channel.
func (c *EventChannel) FD() int { return c.fd }

// Priority implements Channel. Wake processing runs after socket dispatch
// but before timer dispatch within a single wake batch.
func (c *EventChannel) Priority() int { return PriorityEvent }

// SetOnWake installs the closure invoked when the channel is dispatched.
func (c *EventChannel) SetOnWake(f func()) { c.onWake = f }

// Wake adds one to the eventfd's 8-byte counter, making it readable. Safe to call
// from any thread; redundant wakes while the fd is already readable are
// coalesced by the kernel (the counter simply accumulates).
func (c *EventChannel) Wake() error {
	var buf [8]byte
	buf[7] = 1
	_, err := writeFD(c.fd, buf[:])
	if err == unix.EAGAIN {
		// Counter saturated; a wake is already pending, nothing to do.
		return nil
	}
	return err
}

// HandleEvents implements Channel: drains the eventfd counter and invokes
// the on-wake closure.
func (c *EventChannel) HandleEvents(events ReceiveEvents, _ Timestamp) {
	c.drain()
	if c.onWake != nil {
		c.onWake()
	}
}

func (c *EventChannel) drain() {
	var buf [8]byte
	for {
		_, err := readFD(c.fd, buf[:])
		if err != nil {
			return
		}
	}
}

// Close releases the eventfd.
func (c *EventChannel) Close() error {
	return closeFD(c.fd)
}
