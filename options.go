// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package reactor

// loopOptions holds resolved configuration for EventLoop creation.
type loopOptions struct {
	eventQueueType EventQueueType
	timerQueueType TimerQueueType
	selectorType   SelectorType
	selectTimeout  Duration
	socketOptions  SocketOptions
	logger         Logger
	metrics        bool
}

// Option configures an EventLoop or EventLoopGroup at construction time.
type Option interface {
	apply(*loopOptions) error
}

type optionFunc func(*loopOptions) error

func (f optionFunc) apply(opts *loopOptions) error { return f(opts) }

// WithEventQueueType selects the cross-thread task queue implementation.
// Default: EventQueueLockFree.
func WithEventQueueType(kind EventQueueType) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.eventQueueType = kind
		return nil
	})
}

// WithTimerQueueType selects the timer queue implementation. Default:
// TimerQueueHeap.
func WithTimerQueueType(kind TimerQueueType) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.timerQueueType = kind
		return nil
	})
}

// WithSelectorType selects the I/O multiplexing backend. Default:
// SelectorEpoll.
func WithSelectorType(kind SelectorType) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.selectorType = kind
		return nil
	})
}

// WithSelectTimeout bounds how long a single Selector.Wait call may block
// when no timer is pending, so the loop periodically revisits its event
// queue even under spurious silence. Default: 10 seconds.
func WithSelectTimeout(timeout Duration) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.selectTimeout = timeout
		return nil
	})
}

// WithSocketOptions records socket options in the resolved configuration.
// NewEventLoop does not read them: Acceptor, TcpServer and TcpClient apply
// the SocketOptions passed to their own constructors instead.
func WithSocketOptions(socketOpts SocketOptions) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.socketOptions = socketOpts
		return nil
	})
}

// WithLogger installs a structured Logger, replacing the default no-op.
func WithLogger(logger Logger) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	})
}

// WithMetrics enables per-loop tick latency and queue depth instrumentation,
// retrievable via EventLoop.Metrics. Disabled by default: a loop that never
// enables metrics never pays for collecting them.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(opts *loopOptions) error {
		opts.metrics = enabled
		return nil
	})
}

// resolveOptions applies Option instances over the documented defaults.
func resolveOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		eventQueueType: EventQueueLockFree,
		timerQueueType: TimerQueueHeap,
		selectorType:   SelectorEpoll,
		selectTimeout:  Seconds(10),
		socketOptions:  DefaultSocketOptions(),
		logger:         nopLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
