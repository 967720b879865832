//go:build linux

package reactor

import "sync/atomic"

// Channel is a thin adapter over a file descriptor. A channel is registered
// with at most one selector at a time; deregistration before destruction is
// required. Concrete variants are SocketChannel, EventChannel and
// TimerChannel.
type Channel interface {
	// FD returns the underlying file descriptor.
	FD() int

	// HandleEvents dispatches a batch of readiness events delivered for
	// this channel at time now. Always invoked on the owning loop thread.
	HandleEvents(events ReceiveEvents, now Timestamp)

	// Priority orders dispatch relative to other channels within a single
	// wake; lower values run first.
	Priority() int

	// selector returns the selector this channel is currently registered
	// with, or nil.
	selector() *Selector
	setSelector(s *Selector)
}

// channelBase provides the selector back-reference bookkeeping shared by
// all Channel implementations.
type channelBase struct {
	sel atomic.Pointer[Selector]
}

func (c *channelBase) selector() *Selector     { return c.sel.Load() }
func (c *channelBase) setSelector(s *Selector) { c.sel.Store(s) }

// Priority default: socket traffic before housekeeping channels unless
// overridden.
const (
	PrioritySocket = 0
	PriorityEvent  = 10
	PriorityTimer  = 20
)
