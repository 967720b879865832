//go:build linux

package reactor

import (
	"net"
	"testing"
	"time"
)

// unusedLoopbackAddress binds an ephemeral port, closes it immediately, and
// returns the now-unoccupied address as a refused-connection target.
func unusedLoopbackAddress(t *testing.T) Address {
	t.Helper()
	fd, err := createSocket(unixAFInet)
	if err != nil {
		t.Fatalf("createSocket: %v", err)
	}
	if err := bindAndListen(fd, Address{IP: net.IPv4(127, 0, 0, 1)}, 1); err != nil {
		t.Fatalf("bindAndListen: %v", err)
	}
	addr := localAddr(fd)
	closeFD(fd)
	return addr
}

func TestTcpClientRetriesAfterConnectionRefused(t *testing.T) {
	addr := unusedLoopbackAddress(t)

	loop, err := NewEventLoop()
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	go func() { _ = loop.Loop() }()
	t.Cleanup(func() { loop.Close(); loop.Join() })

	client := NewTcpClient(loop, addr, func() Handler { return &recordingHandler{} }, DefaultSocketOptions())
	client.Start()
	t.Cleanup(func() { client.Close() })

	// The refused connect surfaces as a write-error event, which tears down
	// and schedules a retry; state drops back to ClientOffline well inside
	// the one-second reconnect backoff.
	waitUntil(t, func() bool { return client.State() == ClientOffline }, 2*time.Second)
}

func TestTcpClientReconnectsAfterServerForceCloses(t *testing.T) {
	boss := newTestGroup(t, 1)
	worker := newTestGroup(t, 1)

	server := NewTcpServer(boss, worker, func() Handler { return &recordingHandler{} }, DefaultSocketOptions())
	if err := server.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	clientLoop, err := NewEventLoop()
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	go func() { _ = clientLoop.Loop() }()
	t.Cleanup(func() { clientLoop.Close(); clientLoop.Join() })

	client := NewTcpClient(clientLoop, server.Address(), func() Handler { return &recordingHandler{} }, DefaultSocketOptions())
	client.Start()
	t.Cleanup(func() { client.Close() })

	waitUntil(t, func() bool { return client.State() == ClientConnected }, 2*time.Second)

	if err := server.Close(); err != nil {
		t.Fatalf("server.Close: %v", err)
	}

	// Losing the peer should drop the client back to reconnecting rather
	// than leaving it stuck in ClientConnected.
	waitUntil(t, func() bool { return client.State() != ClientConnected }, 2*time.Second)
}
