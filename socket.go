//go:build linux

package reactor

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return Address{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return Address{IP: ip, Port: v.Port}
	default:
		return Address{}
	}
}

func sockaddrFromAddress(addr Address) (unix.Sockaddr, int, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		return sa, unix.AF_INET, nil
	}
	if ip16 := addr.IP.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip16)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, fmt.Errorf("reactor: unsupported address %v", addr)
}

// SocketOptions configures the socket-level behavior applied to every
// Connection an Acceptor or TcpClient produces.
type SocketOptions struct {
	ReuseAddr  bool
	ReusePort  bool
	KeepAlive  bool
	TCPNoDelay bool
}

// DefaultSocketOptions matches the original implementation's server
// defaults: address reuse on (so a restarted server can rebind
// immediately), Nagle's algorithm off (so small writes aren't delayed).
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{ReuseAddr: true, TCPNoDelay: true}
}

const (
	unixAFInet  = unix.AF_INET
	unixAFInet6 = unix.AF_INET6
)

// acceptOne accepts a single pending connection on a non-blocking listening
// fd, returning the new connection's fd and the peer's address.
func acceptOne(listenFD int) (int, Address, error) {
	fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Address{}, err
	}
	return fd, addressFromSockaddr(sa), nil
}

// connectSocket issues a non-blocking connect, returning immediately
// whether or not it completed; EINPROGRESS is the expected case and is
// resolved later by the write-readiness callback plus a SO_ERROR check.
func connectSocket(fd int, addr Address) error {
	sa, _, err := sockaddrFromAddress(addr)
	if err != nil {
		return err
	}
	err = unix.Connect(fd, sa)
	if err == nil || err == unix.EINPROGRESS {
		return nil
	}
	return FromError(err).AsError()
}

// createSocket opens a non-blocking TCP socket for the given address
// family.
func createSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, FromError(err).AsError()
	}
	return fd, nil
}

func applySocketOptions(fd int, opts SocketOptions) error {
	if opts.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return FromError(err).AsError()
		}
	}
	if opts.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return FromError(err).AsError()
		}
	}
	if opts.KeepAlive {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return FromError(err).AsError()
		}
	}
	if opts.TCPNoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return FromError(err).AsError()
		}
	}
	return nil
}

func bindAndListen(fd int, addr Address, backlog int) error {
	sa, _, err := sockaddrFromAddress(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		return FromError(err).AsError()
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return FromError(err).AsError()
	}
	return nil
}

func localAddr(fd int) Address {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}
	}
	return addressFromSockaddr(sa)
}

func peerAddr(fd int) Address {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Address{}
	}
	return addressFromSockaddr(sa)
}

// socketError retrieves and clears SO_ERROR, the standard way to learn why
// a nonblocking connect or an EPOLLERR-flagged fd failed.
func socketError(fd int) Error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return FromError(err)
	}
	if errno == 0 {
		return OK()
	}
	return FromErrno(syscall.Errno(errno))
}
