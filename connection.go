//go:build linux

package reactor

import (
	"sync"
	"sync/atomic"
)

// ConnectionState is the four-state TCP connection lifecycle.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Connection is a single established TCP connection, bound to exactly one
// EventLoop for its entire lifetime. All mutation of its buffers and
// handler callbacks happens on that loop's goroutine; callers on other
// goroutines may only call Send/Close/Shutdown/ForceClose, which marshal
// onto the loop if called off it.
type Connection struct {
	state atomic.Int32

	loop    *EventLoop
	channel *SocketChannel
	ctx     *ChannelContext
	handler Handler

	input  *Buffer
	output *Buffer

	local Address
	peer  Address

	closeOnce sync.Once
}

// newConnection wraps an already-connected fd. The caller registers the
// returned Connection's channel with the owning loop's selector and calls
// Start.
func newConnection(loop *EventLoop, fd int, local, peer Address, handler Handler) *Connection {
	conn := &Connection{
		loop:    loop,
		channel: NewSocketChannel(fd),
		ctx:     &ChannelContext{},
		handler: handler,
		input:   NewBuffer(4096),
		output:  NewBuffer(4096),
		local:   local,
		peer:    peer,
	}
	conn.state.Store(int32(StateConnecting))
	conn.ctx.conn = conn
	conn.channel.SetCallbacks(conn.handleRead, conn.handleWrite, conn.handleClose, conn.handleError)
	return conn
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Loop returns the EventLoop this connection is bound to.
func (c *Connection) Loop() *EventLoop { return c.loop }

// LocalAddress returns the local endpoint.
func (c *Connection) LocalAddress() Address { return c.local }

// PeerAddress returns the remote endpoint.
func (c *Connection) PeerAddress() Address { return c.peer }

// transition attempts an atomic CAS from `from` to `to`; the first caller
// to win the race performs the associated side effect, matching the
// "first successful transition out of Connected wins" invariant.
func (c *Connection) transition(from, to ConnectionState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Start registers the channel for read interest and fires OnConnect. Must
// be called on the owning loop's goroutine.
func (c *Connection) Start() {
	if !c.transition(StateConnecting, StateConnected) {
		return
	}
	c.channel.SetReadable(true)
	if c.handler != nil {
		c.handler.OnConnect(c)
	}
}

// Send enqueues buffer for writing. If called off the owning loop's
// goroutine, it is marshaled onto the loop via Schedule; data is copied
// before crossing goroutines so the caller may reuse buffer immediately.
// Returns ErrConnectionClosed if the connection has already torn down.
func (c *Connection) Send(data []byte) error {
	if c.State() == StateDisconnected {
		return ErrConnectionClosed
	}
	if c.loop.CheckUnderLoop() {
		c.handleSend(data)
		return nil
	}
	clone := append([]byte(nil), data...)
	c.loop.Schedule(func() { c.handleSend(clone) })
	return nil
}

func (c *Connection) handleSend(data []byte) {
	if c.State() != StateConnected {
		return
	}
	if c.output.IsEmpty() {
		n, err := writeFD(c.channel.FD(), data)
		if err != nil {
			fe := FromError(err)
			if !fe.IsRetryable() {
				c.handleError(fe)
				return
			}
			n = 0
		}
		if n < len(data) {
			c.output.Append(data[n:])
			c.channel.SetWritable(true)
		} else if c.handler != nil {
			c.handler.OnWriteComplete(c)
		}
		return
	}
	c.output.Append(data)
	c.channel.SetWritable(true)
}

// handleRead is the SocketChannel's onReadable callback.
func (c *Connection) handleRead(now Timestamp) {
	n, err := c.input.ReadFromFD(c.channel.FD(), 65536)
	if err != nil {
		fe := FromError(err)
		if fe.IsRetryable() {
			return
		}
		c.handleError(fe)
		return
	}
	if n == 0 {
		c.handleClose()
		return
	}
	if c.handler != nil {
		c.handler.OnRead(c, c.input, now)
	}
}

// handleWrite is the SocketChannel's onWritable callback: drains as much
// of the output buffer as the socket accepts, disabling write interest
// once empty.
func (c *Connection) handleWrite() {
	if c.output.IsEmpty() {
		c.channel.SetWritable(false)
		return
	}
	n, err := c.output.WriteToFD(c.channel.FD())
	if err != nil {
		fe := FromError(err)
		if !fe.IsRetryable() {
			c.handleError(fe)
		}
		return
	}
	_ = n
	if c.output.IsEmpty() {
		c.channel.SetWritable(false)
		if c.handler != nil {
			c.handler.OnWriteComplete(c)
		}
		if c.State() == StateDisconnecting {
			c.finishClose()
		}
	}
}

// handleError reports err to the handler, then tears the connection down:
// an errored fd keeps reporting EPOLLERR|EPOLLHUP on every subsequent
// Wait, so leaving the channel registered here would busy-loop the
// handler on OnError forever and never deliver OnClose.
func (c *Connection) handleError(err Error) {
	if c.handler != nil {
		c.handler.OnError(c, err)
	}
	c.forceCloseLocked()
}

// handleClose is invoked on peer EOF or hangup; it is the orderly path,
// distinct from ForceClose.
func (c *Connection) handleClose() {
	if !c.transition(StateConnected, StateDisconnecting) {
		if c.State() == StateConnecting {
			c.transition(StateConnecting, StateDisconnecting)
		} else {
			return
		}
	}
	c.finishClose()
}

func (c *Connection) finishClose() {
	if !c.transition(StateDisconnecting, StateDisconnected) {
		return
	}
	c.closeOnce.Do(func() {
		if sel := c.channel.selector(); sel != nil {
			sel.Remove(c.channel)
		}
		c.channel.Close()
		c.ctx.clear()
		if c.handler != nil {
			c.handler.OnClose(c)
		}
	})
}

// Close begins an orderly shutdown: pending output is flushed before the
// fd is closed. Equivalent to Shutdown for a Connection (pedronet's
// half-close write-side-only Shutdown collapses to a full close here
// since Buffer has no independent read-side shutdown to preserve).
func (c *Connection) Close() {
	if c.loop.CheckUnderLoop() {
		c.closeLocked()
		return
	}
	c.loop.Schedule(c.closeLocked)
}

func (c *Connection) closeLocked() {
	for {
		state := c.State()
		switch state {
		case StateConnecting:
			if c.transition(StateConnecting, StateDisconnecting) {
				c.finishClose()
				return
			}
		case StateConnected:
			if c.transition(StateConnected, StateDisconnecting) {
				if c.output.IsEmpty() {
					c.finishClose()
				}
				return
			}
		default:
			return
		}
	}
}

// Shutdown is an alias for Close: it waits for pending output to drain, then
// closes the socket fully. The write side is not half-closed on its own and
// the read side is not kept open after output drains.
func (c *Connection) Shutdown() { c.Close() }

// ForceShutdown immediately tears down the connection regardless of
// pending output.
func (c *Connection) ForceShutdown() { c.ForceClose() }

// ForceClose tears the connection down immediately from any state,
// discarding unflushed output.
func (c *Connection) ForceClose() {
	if c.loop.CheckUnderLoop() {
		c.forceCloseLocked()
		return
	}
	c.loop.Schedule(c.forceCloseLocked)
}

func (c *Connection) forceCloseLocked() {
	for {
		state := c.State()
		if state == StateDisconnected {
			return
		}
		if c.transition(state, StateDisconnecting) {
			c.finishClose()
			return
		}
	}
}
