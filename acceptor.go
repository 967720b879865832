//go:build linux

package reactor

// AcceptorCallback receives each accepted connection's raw fd and peer
// address. It runs on the Acceptor's owning EventLoop's goroutine.
type AcceptorCallback func(fd int, local, peer Address)

// Acceptor listens on one address and dispatches accepted connections to a
// callback, bound to a single EventLoop for its entire lifetime (typically
// the first loop in a "boss" EventLoopGroup).
type Acceptor struct {
	loop    *EventLoop
	channel *SocketChannel
	address Address
	opts    SocketOptions
	onAccept AcceptorCallback
}

// NewAcceptor creates an Acceptor bound to loop, listening on address once
// Listen is called.
func NewAcceptor(loop *EventLoop, address Address, opts SocketOptions) (*Acceptor, error) {
	family, err := addressFamily(address)
	if err != nil {
		return nil, err
	}
	fd, err := createSocket(family)
	if err != nil {
		return nil, err
	}
	if err := applySocketOptions(fd, opts); err != nil {
		closeFD(fd)
		return nil, err
	}
	return &Acceptor{
		loop:    loop,
		channel: NewSocketChannel(fd),
		address: address,
		opts:    opts,
	}, nil
}

func addressFamily(addr Address) (int, error) {
	if addr.IP == nil || addr.IP.To4() != nil {
		return unixAFInet, nil
	}
	return unixAFInet6, nil
}

// OnAccept installs the callback invoked for each accepted connection.
func (a *Acceptor) OnAccept(cb AcceptorCallback) { a.onAccept = cb }

// Listen binds, starts listening, and registers the acceptor's channel
// with its loop for read readiness (an incoming connection wakes it up
// exactly like any other readable fd).
func (a *Acceptor) Listen(backlog int) error {
	if err := bindAndListen(a.channel.FD(), a.address, backlog); err != nil {
		return err
	}
	a.address = localAddr(a.channel.FD())
	a.channel.SetCallbacks(a.handleAccept, nil, nil, a.handleError)
	return a.loop.Register(a.channel, EventRead)
}

// Address returns the bound local address (resolved after Listen).
func (a *Acceptor) Address() Address { return a.address }

func (a *Acceptor) handleAccept(Timestamp) {
	for {
		fd, peer, err := acceptOne(a.channel.FD())
		if err != nil {
			fe := FromError(err)
			if !fe.IsRetryable() {
				a.handleError(fe)
			}
			return
		}
		local := localAddr(fd)
		if a.onAccept != nil {
			a.onAccept(fd, local, peer)
		} else {
			closeFD(fd)
		}
	}
}

func (a *Acceptor) handleError(Error) {
	// Errors on the listening socket are ignored: the Acceptor stays
	// registered and the owning TcpServer is not notified.
}

// Close deregisters and closes the listening socket.
func (a *Acceptor) Close() error {
	_ = a.loop.Deregister(a.channel)
	return a.channel.Close()
}
