//go:build linux

package reactor

// Handler receives lifecycle callbacks for one Connection. All callbacks
// run on the owning EventLoop's goroutine; implementations must not block.
type Handler interface {
	OnConnect(conn *Connection)
	OnRead(conn *Connection, buf *Buffer, now Timestamp)
	OnWriteComplete(conn *Connection)
	OnError(conn *Connection, err Error)
	OnClose(conn *Connection)
}

// HandlerFactory builds a fresh Handler for each accepted or established
// Connection, so per-connection state never has to be shared or reset.
type HandlerFactory func() Handler

// ChannelContext records the Connection that owns a SocketChannel. The
// Connection sets it at construction and clears it on close. Nothing reads
// it: the channel's event callbacks are bound Connection methods, and
// Handler callbacks receive the *Connection directly.
type ChannelContext struct {
	conn *Connection
}

func (c *ChannelContext) clear() {
	c.conn = nil
}
