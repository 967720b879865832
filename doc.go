// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor implements a reactor-style TCP networking core: a
// multi-threaded event loop group that demultiplexes readiness events from
// a kernel I/O multiplexer, dispatches them to per-connection channels,
// drains cross-thread task submissions, and fires scheduled/periodic
// timers.
//
// # Layout
//
// The stack is leaves-first:
//
//   - Selector owns the kernel multiplexer handle (epoll, or poll as a
//     fallback) and produces batches of ready (Channel, ReceiveEvents)
//     pairs.
//   - Channel is a thin adapter over a file descriptor; SocketChannel,
//     EventChannel and TimerChannel are its three concrete variants.
//   - EventQueue hands task closures from any thread into the loop thread;
//     three interchangeable implementations are provided (lock-free,
//     mutex+deque, double-buffered swap).
//   - TimerQueue schedules one-shot and periodic callbacks; a binary heap
//     and a hashed timing wheel are both available behind the same
//     interface.
//   - EventLoop wires one Selector, one EventQueue, one TimerQueue and the
//     registered channels of its attached connections, driving a
//     wait/dispatch/tasks/timers cycle on a single goroutine.
//   - EventLoopGroup is a fixed pool of EventLoops, each pinned to its own
//     OS thread via runtime.LockOSThread, round-robining new work across
//     the pool.
//   - Connection is a stateful wrapper over a SocketChannel implementing
//     the four-state connect/read/write/close lifecycle.
//
// # Usage
//
//	group, err := reactor.NewEventLoopGroup(4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer func() { group.Close(); group.Join() }()
//
//	server := reactor.NewTcpServer(group, group, myHandlerFactory, reactor.DefaultSocketOptions())
//	if err := server.Bind("127.0.0.1:0"); err != nil {
//	    log.Fatal(err)
//	}
//
// Application-level framing, TLS, RPC semantics, Windows I/O APIs,
// sub-microsecond timer accuracy and zero-copy optimizations beyond
// ordinary scatter-gather reads are out of scope.
package reactor
