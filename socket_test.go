//go:build linux

package reactor

import (
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

const defaultWaitTimeout = time.Second

func TestSockaddrRoundTripIPv4(t *testing.T) {
	addr := Address{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
	sa, family, err := sockaddrFromAddress(addr)
	if err != nil {
		t.Fatalf("sockaddrFromAddress: %v", err)
	}
	if family != unix.AF_INET {
		t.Errorf("family = %d, want AF_INET", family)
	}
	back := addressFromSockaddr(sa)
	if !back.IP.Equal(addr.IP) || back.Port != addr.Port {
		t.Errorf("round trip = %v, want %v", back, addr)
	}
}

func TestSockaddrRoundTripIPv6(t *testing.T) {
	addr := Address{IP: net.ParseIP("::1"), Port: 9090}
	sa, family, err := sockaddrFromAddress(addr)
	if err != nil {
		t.Fatalf("sockaddrFromAddress: %v", err)
	}
	if family != unix.AF_INET6 {
		t.Errorf("family = %d, want AF_INET6", family)
	}
	back := addressFromSockaddr(sa)
	if !back.IP.Equal(addr.IP) || back.Port != addr.Port {
		t.Errorf("round trip = %v, want %v", back, addr)
	}
}

func TestSockaddrFromZeroAddressDefaultsToINADDRANY(t *testing.T) {
	sa, family, err := sockaddrFromAddress(Address{Port: 1234})
	if err != nil {
		t.Fatalf("sockaddrFromAddress: %v", err)
	}
	if family != unix.AF_INET {
		t.Errorf("family = %d, want AF_INET", family)
	}
	v, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("sa = %T, want *unix.SockaddrInet4", sa)
	}
	if v.Port != 1234 {
		t.Errorf("Port = %d, want 1234", v.Port)
	}
}

func TestCreateBindListenAcceptRoundTrip(t *testing.T) {
	listenFD, err := createSocket(unixAFInet)
	if err != nil {
		t.Fatalf("createSocket: %v", err)
	}
	defer closeFD(listenFD)

	if err := applySocketOptions(listenFD, DefaultSocketOptions()); err != nil {
		t.Fatalf("applySocketOptions: %v", err)
	}
	if err := bindAndListen(listenFD, Address{IP: net.IPv4(127, 0, 0, 1)}, 16); err != nil {
		t.Fatalf("bindAndListen: %v", err)
	}

	bound := localAddr(listenFD)
	if bound.Port == 0 {
		t.Fatal("localAddr reported port 0 after bind")
	}

	clientFD, err := createSocket(unixAFInet)
	if err != nil {
		t.Fatalf("createSocket (client): %v", err)
	}
	defer closeFD(clientFD)

	if err := connectSocket(clientFD, bound); err != nil {
		t.Fatalf("connectSocket: %v", err)
	}

	waitUntil(t, func() bool {
		acceptedFD, _, err := acceptOne(listenFD)
		if err == nil {
			closeFD(acceptedFD)
			return true
		}
		return false
	}, defaultWaitTimeout)
}

func TestSocketErrorReportsOKForHealthySocket(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if e := socketError(fds[0]); !e.IsOK() {
		t.Errorf("socketError on healthy socket = %v, want OK", e)
	}
}

func TestSocketErrorReportsFailureAfterConnectRefused(t *testing.T) {
	// Bind to get an address, close it immediately so the port refuses
	// connections, then connect a fresh non-blocking socket to it.
	listenFD, err := createSocket(unixAFInet)
	if err != nil {
		t.Fatalf("createSocket: %v", err)
	}
	if err := bindAndListen(listenFD, Address{IP: net.IPv4(127, 0, 0, 1)}, 1); err != nil {
		t.Fatalf("bindAndListen: %v", err)
	}
	bound := localAddr(listenFD)
	closeFD(listenFD)

	clientFD, err := createSocket(unixAFInet)
	if err != nil {
		t.Fatalf("createSocket (client): %v", err)
	}
	defer closeFD(clientFD)

	_ = connectSocket(clientFD, bound)
	waitUntil(t, func() bool { return !socketError(clientFD).IsOK() }, defaultWaitTimeout)
}
