//go:build linux

package reactor

import "sync"

// ClientState is the TcpClient connection lifecycle, distinct from
// ConnectionState in that it also covers the time before any socket exists
// and survives across reconnect attempts.
type ClientState int32

const (
	ClientOffline ClientState = iota
	ClientConnecting
	ClientConnected
	ClientDisconnecting
	ClientDisconnected
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientConnected:
		return "connected"
	case ClientDisconnecting:
		return "disconnecting"
	case ClientDisconnected:
		return "disconnected"
	default:
		return "offline"
	}
}

// reconnectDelay is the fixed backoff between a failed connect attempt and
// the next retry, matching the original implementation's one-second pause.
const reconnectDelay = Duration(1_000_000) // 1s, in microseconds

// TcpClient manages a single outbound connection to a fixed remote address,
// reconnecting automatically after a retryable connect failure or peer close
// until Close is called. A connect-fatal error stops reconnection and leaves
// the client offline (see failConnect).
type TcpClient struct {
	loop       *EventLoop
	remote     Address
	factory    HandlerFactory
	socketOpts SocketOptions

	mu      sync.Mutex
	state   ClientState
	conn    *Connection
	closing bool
	timerID uint64
}

// NewTcpClient constructs a client that connects to remote on loop, handing
// each successful connection a Handler produced by factory.
func NewTcpClient(loop *EventLoop, remote Address, factory HandlerFactory, socketOpts SocketOptions) *TcpClient {
	return &TcpClient{
		loop:       loop,
		remote:     remote,
		factory:    factory,
		socketOpts: socketOpts,
		state:      ClientOffline,
	}
}

// Start begins the first connection attempt. Safe to call from any
// goroutine; the attempt itself always runs on the owning loop.
func (c *TcpClient) Start() {
	c.loop.Run(c.attempt)
}

// State returns the client's current lifecycle state.
func (c *TcpClient) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send forwards data to the current Connection, if any. A no-op while
// offline or between reconnect attempts; returns ErrConnectionClosed if a
// connection exists but has already torn down.
func (c *TcpClient) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Send(data)
}

func (c *TcpClient) attempt() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.state = ClientConnecting
	c.mu.Unlock()

	handler := c.factory()

	family, err := addressFamily(c.remote)
	if err != nil {
		c.failConnect(handler, nil, classifyConnectErr(err))
		return
	}
	fd, err := createSocket(family)
	if err != nil {
		c.failConnect(handler, nil, classifyConnectErr(err))
		return
	}
	if err := applySocketOptions(fd, c.socketOpts); err != nil {
		closeFD(fd)
		c.failConnect(handler, nil, classifyConnectErr(err))
		return
	}
	if err := connectSocket(fd, c.remote); err != nil {
		closeFD(fd)
		c.failConnect(handler, nil, classifyConnectErr(err))
		return
	}

	local := localAddr(fd)
	conn := newConnection(c.loop, fd, local, c.remote, handler)
	conn.handler = &clientTrackingHandler{client: c, inner: conn.handler}

	if err := c.loop.Register(conn.channel, EventWrite); err != nil {
		closeFD(fd)
		c.scheduleRetry()
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// The connect outcome (success or refused) surfaces as the first write
	// readiness event, resolved against SO_ERROR in finishConnect.
	conn.channel.SetCallbacks(conn.handleRead, c.finishConnectFunc(conn), conn.handleClose, c.connectErrorFunc(conn))
}

// classifyConnectErr recovers the Error carried by err, unwrapping the
// Error value the socket helpers already wrap connect-path errno failures
// in, rather than re-deriving it and losing the original code to the
// generic errors.As fallback in FromError.
func classifyConnectErr(err error) Error {
	if e, ok := err.(Error); ok {
		return e
	}
	return FromError(err)
}

// failConnect reports a connect-path failure and decides whether to keep
// retrying. Retryable conditions (the connect-class errno set in
// Error.IsConnectRetryable) get the usual backoff; anything else is
// connect-fatal: it is reported to handler and the client stops
// reconnecting, going offline permanently.
func (c *TcpClient) failConnect(handler Handler, conn *Connection, err Error) {
	if err.IsConnectRetryable() {
		c.scheduleRetry()
		return
	}
	if handler != nil {
		handler.OnError(conn, err)
	}
	c.mu.Lock()
	c.closing = true
	c.state = ClientOffline
	c.mu.Unlock()
}

func (c *TcpClient) finishConnectFunc(conn *Connection) func() {
	return func() {
		if err := socketError(conn.channel.FD()); !err.IsOK() {
			c.teardown(conn)
			c.failConnect(conn.handler, conn, err)
			return
		}
		conn.channel.SetCallbacks(conn.handleRead, conn.handleWrite, conn.handleClose, conn.handleError)
		conn.channel.SetWritable(false)
		c.mu.Lock()
		c.state = ClientConnected
		c.mu.Unlock()
		conn.Start()
	}
}

func (c *TcpClient) connectErrorFunc(conn *Connection) func(Error) {
	return func(err Error) {
		c.teardown(conn)
		c.failConnect(conn.handler, conn, err)
	}
}

func (c *TcpClient) teardown(conn *Connection) {
	_ = c.loop.Deregister(conn.channel)
	conn.channel.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *TcpClient) scheduleRetry() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.state = ClientOffline
	c.mu.Unlock()
	c.loop.ScheduleAfter(reconnectDelay, c.attempt)
}

// clientTrackingHandler clears the client's current-connection pointer and
// resumes reconnecting once the underlying Connection fully closes.
type clientTrackingHandler struct {
	client *TcpClient
	inner  Handler
}

func (h *clientTrackingHandler) OnConnect(conn *Connection) {
	if h.inner != nil {
		h.inner.OnConnect(conn)
	}
}
func (h *clientTrackingHandler) OnRead(conn *Connection, buf *Buffer, now Timestamp) {
	if h.inner != nil {
		h.inner.OnRead(conn, buf, now)
	}
}
func (h *clientTrackingHandler) OnWriteComplete(conn *Connection) {
	if h.inner != nil {
		h.inner.OnWriteComplete(conn)
	}
}
func (h *clientTrackingHandler) OnError(conn *Connection, err Error) {
	if h.inner != nil {
		h.inner.OnError(conn, err)
	}
}
func (h *clientTrackingHandler) OnClose(conn *Connection) {
	h.client.mu.Lock()
	if h.client.conn == conn {
		h.client.conn = nil
	}
	closing := h.client.closing
	h.client.mu.Unlock()
	if h.inner != nil {
		h.inner.OnClose(conn)
	}
	if !closing {
		h.client.scheduleRetry()
	}
}

// Close begins an orderly shutdown of the current connection, if any, and
// stops reconnecting.
func (c *TcpClient) Close() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Shutdown is an alias for Close.
func (c *TcpClient) Shutdown() { c.Close() }

// ForceClose immediately tears down the current connection, if any, and
// stops reconnecting.
func (c *TcpClient) ForceClose() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.ForceClose()
	}
}

// ForceShutdown is an alias for ForceClose.
func (c *TcpClient) ForceShutdown() { c.ForceClose() }
