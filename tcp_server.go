//go:build linux

package reactor

import (
	"sync"
	"time"
)

// TcpServer binds one listening address and spreads accepted connections
// across a worker EventLoopGroup. The boss group's next loop owns the
// Acceptor; each accepted socket is then handed to the worker group's next
// loop in round robin.
type TcpServer struct {
	bossGroup   *EventLoopGroup
	workerGroup *EventLoopGroup
	factory     HandlerFactory
	socketOpts  SocketOptions
	accepts     *RateCounter

	mu       sync.Mutex
	acceptor *Acceptor
	actives  map[*Connection]struct{}
}

// NewTcpServer constructs a server that accepts on bossGroup and dispatches
// connections to workerGroup. Pass the same group for both to run
// everything (accept + per-connection I/O) on one pool.
func NewTcpServer(bossGroup, workerGroup *EventLoopGroup, factory HandlerFactory, socketOpts SocketOptions) *TcpServer {
	return &TcpServer{
		bossGroup:   bossGroup,
		workerGroup: workerGroup,
		factory:     factory,
		socketOpts:  socketOpts,
		actives:     make(map[*Connection]struct{}),
		accepts:     NewRateCounter(10*time.Second, 100*time.Millisecond),
	}
}

// AcceptRate returns the current accepted-connections-per-second rate,
// averaged over the trailing 10 seconds.
func (s *TcpServer) AcceptRate() float64 { return s.accepts.Rate() }

// Bind resolves address, creates the Acceptor on the boss group's next
// loop in round robin, and starts listening.
func (s *TcpServer) Bind(address string) error {
	addr, err := ResolveAddress(address)
	if err != nil {
		return err
	}
	bossLoop := s.bossGroup.Next()
	acceptor, err := NewAcceptor(bossLoop, addr, s.socketOpts)
	if err != nil {
		return err
	}
	acceptor.OnAccept(s.handleAccept)

	s.mu.Lock()
	s.acceptor = acceptor
	s.mu.Unlock()

	return acceptor.Listen(1024)
}

// Address returns the bound local address.
func (s *TcpServer) Address() Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return Address{}
	}
	return s.acceptor.Address()
}

func (s *TcpServer) handleAccept(fd int, local, peer Address) {
	s.accepts.Increment()
	if err := applySocketOptions(fd, s.socketOpts); err != nil {
		closeFD(fd)
		return
	}
	loop := s.workerGroup.Next()
	loop.Schedule(func() {
		handler := s.factory()
		conn := newConnection(loop, fd, local, peer, handler)
		wrapped := conn.handler
		conn.handler = &trackingHandler{server: s, conn: conn, inner: wrapped}

		s.mu.Lock()
		s.actives[conn] = struct{}{}
		s.mu.Unlock()

		if err := loop.Register(conn.channel, EventNone); err != nil {
			s.mu.Lock()
			delete(s.actives, conn)
			s.mu.Unlock()
			closeFD(fd)
			return
		}
		conn.Start()
	})
}

// trackingHandler wraps a server's per-connection Handler to remove the
// connection from the active set on close, without requiring every
// Handler implementation to know about TcpServer bookkeeping.
type trackingHandler struct {
	server *TcpServer
	conn   *Connection
	inner  Handler
}

func (h *trackingHandler) OnConnect(conn *Connection) {
	if h.inner != nil {
		h.inner.OnConnect(conn)
	}
}
func (h *trackingHandler) OnRead(conn *Connection, buf *Buffer, now Timestamp) {
	if h.inner != nil {
		h.inner.OnRead(conn, buf, now)
	}
}
func (h *trackingHandler) OnWriteComplete(conn *Connection) {
	if h.inner != nil {
		h.inner.OnWriteComplete(conn)
	}
}
func (h *trackingHandler) OnError(conn *Connection, err Error) {
	if h.inner != nil {
		h.inner.OnError(conn, err)
	}
}
func (h *trackingHandler) OnClose(conn *Connection) {
	h.server.mu.Lock()
	delete(h.server.actives, conn)
	h.server.mu.Unlock()
	if h.inner != nil {
		h.inner.OnClose(conn)
	}
}

// ActiveConnections returns the number of currently tracked connections.
func (s *TcpServer) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actives)
}

// Close stops accepting new connections and force-closes every active
// connection.
func (s *TcpServer) Close() error {
	s.mu.Lock()
	acceptor := s.acceptor
	actives := make([]*Connection, 0, len(s.actives))
	for conn := range s.actives {
		actives = append(actives, conn)
	}
	s.mu.Unlock()

	var err error
	if acceptor != nil {
		err = acceptor.Close()
	}
	for _, conn := range actives {
		conn.ForceClose()
	}
	return err
}
