//go:build linux

package reactor

import (
	"runtime"
	"sync/atomic"
)

// EventLoopGroup owns a fixed-size pool of EventLoops, each pinned to its
// own OS thread, and hands them out round-robin to new Connections (and to
// an Acceptor's accepted sockets) so load spreads evenly across cores.
type EventLoopGroup struct {
	loops []*EventLoop
	next  atomic.Uint64
}

// NewEventLoopGroup constructs size EventLoops (size must be >= 1) from the
// same Options, starts each on its own locked OS thread, and returns once
// every loop has begun accepting work.
func NewEventLoopGroup(size int, opts ...Option) (*EventLoopGroup, error) {
	if size < 1 {
		size = 1
	}
	g := &EventLoopGroup{loops: make([]*EventLoop, size)}
	for i := range g.loops {
		loop, err := NewEventLoop(opts...)
		if err != nil {
			g.Close()
			return nil, err
		}
		g.loops[i] = loop
		started := make(chan struct{})
		go func(loop *EventLoop) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			loop.Schedule(func() { close(started) })
			_ = loop.Loop()
		}(loop)
		<-started
	}
	return g, nil
}

// Next returns the next loop in round-robin order.
func (g *EventLoopGroup) Next() *EventLoop {
	n := g.next.Add(1) - 1
	return g.loops[n%uint64(len(g.loops))]
}

// Size returns the number of loops in the group.
func (g *EventLoopGroup) Size() int { return len(g.loops) }

// Loops returns the group's loops, in stable order. Callers must not
// mutate the returned slice.
func (g *EventLoopGroup) Loops() []*EventLoop { return g.loops }

// Close requests every loop in the group stop. Returns once every Close
// call has been delivered; use Join to wait for actual exit.
func (g *EventLoopGroup) Close() {
	for _, loop := range g.loops {
		if loop != nil {
			loop.Close()
		}
	}
}

// Join blocks until every loop in the group has exited Loop.
func (g *EventLoopGroup) Join() {
	for _, loop := range g.loops {
		if loop != nil {
			loop.Join()
		}
	}
}
