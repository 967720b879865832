//go:build linux

package reactor

// SocketChannel adapts a single stream socket file descriptor to the
// Channel interface. It tracks its desired SelectEvents and re-issues a
// selector update whenever readable/writable interest changes.
type SocketChannel struct {
	channelBase
	fd      int
	desired SelectEvents

	onReadable func(now Timestamp)
	onWritable func()
	onClose    func()
	onError    func(err Error)
}

// NewSocketChannel adapts an already-open, non-blocking socket fd.
func NewSocketChannel(fd int) *SocketChannel {
	return &SocketChannel{fd: fd}
}

// FD implements Channel.
func (c *SocketChannel) FD() int { return c.fd }

// Priority implements Channel. Socket dispatch runs first within a wake
// batch.
func (c *SocketChannel) Priority() int { return PrioritySocket }

// SetCallbacks installs the four per-event closures.
func (c *SocketChannel) SetCallbacks(onReadable func(Timestamp), onWritable, onClose func(), onError func(Error)) {
	c.onReadable = onReadable
	c.onWritable = onWritable
	c.onClose = onClose
	c.onError = onError
}

// SetReadable toggles read interest and pushes the change to the selector,
// if registered.
func (c *SocketChannel) SetReadable(on bool) error {
	return c.setInterest(EventRead, on)
}

// SetWritable toggles write interest and pushes the change to the
// selector, if registered.
func (c *SocketChannel) SetWritable(on bool) error {
	return c.setInterest(EventWrite, on)
}

// IsWritable reports whether write interest is currently set.
func (c *SocketChannel) IsWritable() bool { return c.desired.Writable() }

func (c *SocketChannel) setInterest(bit SelectEvents, on bool) error {
	before := c.desired
	if on {
		c.desired |= bit
	} else {
		c.desired &^= bit
	}
	if c.desired == before {
		return nil
	}
	if sel := c.selector(); sel != nil {
		return sel.Update(c, c.desired)
	}
	return nil
}

// Desired returns the channel's current interest set.
func (c *SocketChannel) Desired() SelectEvents { return c.desired }

// HandleEvents implements Channel, dispatching the matching per-event
// closures in the order: error, then readable, then writable. Readable,
// peer-close and hang-up events all invoke onReadable (a zero-byte read then
// reports the close); onClose is not invoked from here. An
// error event is terminal for this fd: onError is expected to tear the
// connection down (deregistering this channel) before returning, so no
// further events for it are dispatched this batch or any later one.
func (c *SocketChannel) HandleEvents(events ReceiveEvents, now Timestamp) {
	if events.HasError() {
		if c.onError != nil {
			c.onError(socketError(c.fd))
		}
		return
	}
	if events.Readable() || events.PeerClosed() || events.HangUp() {
		if c.onReadable != nil {
			c.onReadable(now)
		}
	}
	if events.Writable() {
		if c.onWritable != nil {
			c.onWritable()
		}
	}
}

// Close releases the socket fd.
func (c *SocketChannel) Close() error {
	return closeFD(c.fd)
}
