//go:build linux

package reactor

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// minArmDelta is the minimum arming delta for a TimerChannel; requested
// wakes closer than this to now are clamped to now+minArmDelta to avoid
// timer-fd thrash.
const minArmDelta = Duration(100)

// infiniteWake is the sentinel stored in nextWake when no wake is armed.
const infiniteWake = uint64(math.MaxUint64)

// TimerChannel wraps a Linux timerfd. It exposes WakeUpAfter/WakeUpAt and
// only re-arms the underlying timer fd when the requested wake is earlier
// than the one currently armed.
type TimerChannel struct {
	channelBase
	fd       int
	nextWake atomic.Uint64 // microseconds since the reactor epoch, or infiniteWake
	onExpire func()
}

// NewTimerChannel creates a disarmed, non-blocking timerfd-backed channel.
func NewTimerChannel() (*TimerChannel, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	c := &TimerChannel{fd: fd}
	c.nextWake.Store(infiniteWake)
	return c, nil
}

// FD implements Channel.
func (c *TimerChannel) FD() int { return c.fd }

// Priority implements Channel. Timer dispatch runs last within a wake
// batch, after sockets and the cross-thread event channel.
func (c *TimerChannel) Priority() int { return PriorityTimer }

// SetOnExpire installs the closure invoked when the timer fires.
func (c *TimerChannel) SetOnExpire(f func()) { c.onExpire = f }

// WakeUpAfter arms the channel to fire delay from now, if that is earlier
// than the currently armed wake.
func (c *TimerChannel) WakeUpAfter(delay Duration) error {
	return c.WakeUpAt(Now().Add(delay))
}

// WakeUpAt arms the channel to fire at the given absolute timestamp, if
// that is earlier than the currently armed wake. The minimum arming delta
// from now is clamped to 100 microseconds.
func (c *TimerChannel) WakeUpAt(at Timestamp) error {
	requested := uint64(at)
	for {
		current := c.nextWake.Load()
		if current != infiniteWake && requested >= current {
			return nil
		}
		if c.nextWake.CompareAndSwap(current, requested) {
			break
		}
	}

	now := Now()
	if at.Sub(now) < minArmDelta {
		at = now.Add(minArmDelta)
	}
	delay := at.Sub(now)
	spec := unix.ItimerSpec{
		Value: unix.Timespec{
			Sec:  int64(delay.Microseconds() / 1_000_000),
			Nsec: (delay.Microseconds() % 1_000_000) * 1000,
		},
	}
	if spec.Value.Sec == 0 && spec.Value.Nsec == 0 {
		spec.Value.Nsec = 1 // timerfd treats all-zero as "disarm"
	}
	return unix.TimerfdSettime(c.fd, 0, &spec, nil)
}

// HandleEvents implements Channel: drains the timer fd, resets the armed
// deadline to infinity, and invokes the expiry closure.
func (c *TimerChannel) HandleEvents(events ReceiveEvents, _ Timestamp) {
	c.drain()
	c.nextWake.Store(infiniteWake)
	if c.onExpire != nil {
		c.onExpire()
	}
}

func (c *TimerChannel) drain() {
	var buf [8]byte
	readFD(c.fd, buf[:])
}

// Close releases the timerfd.
func (c *TimerChannel) Close() error {
	return closeFD(c.fd)
}
