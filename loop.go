//go:build linux

package reactor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var nextLoopID atomic.Int64

// currentLoopRegistry maps a goroutine id to the *EventLoop currently
// looping on it, the thread-local-equivalent backing CurrentLoop() and the
// fast "Run inline if already on this loop" path, the same trick the
// teacher's isLoopThread/getGoroutineID pair uses to avoid a real TLS
// facility, which Go does not provide.
var currentLoopRegistry sync.Map // goroutine id (uint64) -> *EventLoop

// getGoroutineID parses the numeric id out of runtime.Stack's leading
// "goroutine N [...]" line. Slow; called on Loop entry, by CurrentLoop and
// by CheckUnderLoop, which Connection.Send and Register/Deregister use.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// EventLoop is a single-threaded reactor: one Selector, one cross-thread
// EventQueue, one TimerQueue, and the registered Channels they dispatch to.
// Exactly one goroutine may be inside Loop() at a time; every other
// goroutine reaches the loop only through Schedule/ScheduleAfter/
// ScheduleEvery/Register/Deregister, all of which are safe to call
// concurrently from any goroutine.
type EventLoop struct {
	id int64

	selector     *Selector
	eventQueue   EventQueue
	timerQueue   TimerQueue
	eventChannel *EventChannel
	timerChannel *TimerChannel

	state       loopState
	goroutineID atomic.Uint64

	selectTimeout Duration
	logger        Logger
	metrics       *Metrics

	dispatchBuf []dispatchEntry

	done chan struct{}
}

// dispatchEntry pairs a ready channel with its events for one wake,
// ahead of priority-ordered dispatch.
type dispatchEntry struct {
	ch     Channel
	events ReceiveEvents
}

// NewEventLoop constructs an EventLoop from resolved Options. The returned
// loop is not yet running; call Loop (typically from a dedicated goroutine
// pinned with runtime.LockOSThread, as EventLoopGroup does) to start it.
func NewEventLoop(opts ...Option) (*EventLoop, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	selector, err := NewSelector(cfg.selectorType)
	if err != nil {
		return nil, err
	}
	eventChannel, err := NewEventChannel()
	if err != nil {
		selector.Close()
		return nil, err
	}
	timerChannel, err := NewTimerChannel()
	if err != nil {
		eventChannel.Close()
		selector.Close()
		return nil, err
	}

	l := &EventLoop{
		id:            nextLoopID.Add(1),
		selector:      selector,
		eventQueue:    NewEventQueue(cfg.eventQueueType),
		timerQueue:    NewTimerQueue(cfg.timerQueueType, timerChannel),
		eventChannel:  eventChannel,
		timerChannel:  timerChannel,
		selectTimeout: cfg.selectTimeout,
		logger:        cfg.logger,
		done:          make(chan struct{}),
	}
	if cfg.metrics {
		l.metrics = &Metrics{}
	}
	return l, nil
}

// Metrics returns the loop's instrumentation, or nil if WithMetrics(true)
// was not passed at construction.
func (l *EventLoop) Metrics() *Metrics { return l.metrics }

// ID returns a value unique among EventLoops in this process, useful for
// correlating log lines.
func (l *EventLoop) ID() int64 { return l.id }

// Selector returns the loop's Selector, for components (Acceptor,
// Connection) that need to register their own channels.
func (l *EventLoop) Selector() *Selector { return l.selector }

// CheckUnderLoop reports whether the calling goroutine is the one currently
// inside Loop().
func (l *EventLoop) CheckUnderLoop() bool {
	id := l.goroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// CurrentLoop returns the EventLoop looping on the calling goroutine, or
// nil if the calling goroutine is not inside any EventLoop's Loop().
func CurrentLoop() *EventLoop {
	if v, ok := currentLoopRegistry.Load(getGoroutineID()); ok {
		return v.(*EventLoop)
	}
	return nil
}

// Schedule enqueues task to run on the loop goroutine, waking the loop if
// it was idle. Safe to call from any goroutine, including the loop's own.
func (l *EventLoop) Schedule(task Task) {
	if l.eventQueue.Push(task) {
		if err := l.eventChannel.Wake(); err != nil {
			l.log(LevelWarn, "queue", "wake failed", err, nil)
		}
	}
}

// Run executes runnable inline if called from the loop's own goroutine,
// else schedules it.
func (l *EventLoop) Run(runnable Task) {
	if l.CheckUnderLoop() {
		runnable()
		return
	}
	l.Schedule(runnable)
}

// ScheduleAfter schedules task to fire once after delay.
func (l *EventLoop) ScheduleAfter(delay Duration, task Task) uint64 {
	return l.timerQueue.Add(delay, Zero(), task)
}

// ScheduleEvery schedules task to first fire after delay, then every
// interval thereafter.
func (l *EventLoop) ScheduleEvery(delay, interval Duration, task Task) uint64 {
	return l.timerQueue.Add(delay, interval, task)
}

// ScheduleCancel cancels a pending timer previously returned by
// ScheduleAfter or ScheduleEvery. Returns ErrTimerNotFound if id is
// unknown or already fired and was a one-shot.
func (l *EventLoop) ScheduleCancel(id uint64) error {
	return l.timerQueue.Cancel(id)
}

// Register adds channel to the loop's selector with the given interest.
// Marshals onto the loop goroutine if called from elsewhere. Returns
// ErrLoopClosed if Loop has already returned, since a task scheduled
// against a dead loop would otherwise sit in the queue forever.
func (l *EventLoop) Register(channel Channel, events SelectEvents) error {
	if l.CheckUnderLoop() {
		return l.selector.Add(channel, events)
	}
	if l.state.has(flagJoinable) {
		return ErrLoopClosed
	}
	result := make(chan error, 1)
	l.Schedule(func() { result <- l.selector.Add(channel, events) })
	return <-result
}

// Deregister removes channel from the loop's selector. Returns
// ErrLoopClosed if Loop has already returned.
func (l *EventLoop) Deregister(channel Channel) error {
	if l.CheckUnderLoop() {
		return l.selector.Remove(channel)
	}
	if l.state.has(flagJoinable) {
		return ErrLoopClosed
	}
	result := make(chan error, 1)
	l.Schedule(func() { result <- l.selector.Remove(channel) })
	return <-result
}

// Size returns the number of tasks currently queued in the event queue, a
// coarse load indicator.
func (l *EventLoop) Size() int {
	return l.eventQueue.Len()
}

func (l *EventLoop) log(level LogLevel, category, message string, err error, fields map[string]any) {
	if l.logger == nil || !l.logger.IsEnabled(level) {
		return
	}
	l.logger.Log(LogEntry{Level: level, Category: category, LoopID: l.id, Message: message, Err: err, Context: fields})
}

// Loop runs the reactor loop on the calling goroutine until Close is
// called. Returns ErrLoopAlreadyRunning if another goroutine is already
// inside Loop.
func (l *EventLoop) Loop() error {
	if l.state.testAndSet(flagLooping) {
		return ErrLoopAlreadyRunning
	}

	gid := getGoroutineID()
	l.goroutineID.Store(gid)
	currentLoopRegistry.Store(gid, l)
	defer func() {
		currentLoopRegistry.Delete(gid)
		l.goroutineID.Store(0)
		l.state.clear(flagLooping)
		l.state.set(flagJoinable)
		close(l.done)
	}()

	if err := l.selector.Add(l.eventChannel, EventRead); err != nil {
		return err
	}
	if err := l.selector.Add(l.timerChannel, EventRead); err != nil {
		return err
	}
	l.eventChannel.SetOnWake(l.eventQueue.Drain)
	l.timerChannel.SetOnExpire(func() { l.timerQueue.Process(Now()) })

	for !l.state.has(flagClosing) {
		tickStart := time.Now()
		if err := l.selector.Wait(l.selectTimeout); err != nil {
			l.log(LevelError, "selector", "wait failed", err, nil)
			continue
		}
		now := Now()
		n := l.selector.Size()
		if cap(l.dispatchBuf) < n {
			l.dispatchBuf = make([]dispatchEntry, n)
		}
		batch := l.dispatchBuf[:0]
		for i := 0; i < n; i++ {
			ch, events := l.selector.Get(i)
			if ch == nil {
				continue
			}
			batch = append(batch, dispatchEntry{ch: ch, events: events})
		}
		// Sockets before the cross-thread event channel before timers within
		// this wake, per Channel.Priority; stable so ties (multiple ready
		// sockets) keep selector order.
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].ch.Priority() < batch[j].ch.Priority()
		})
		for _, entry := range batch {
			entry.ch.HandleEvents(entry.events, now)
		}
		if l.metrics != nil {
			l.metrics.Tick.Record(time.Since(tickStart))
			l.metrics.Queue.UpdateEvent(l.eventQueue.Len())
			l.metrics.Queue.UpdateTimer(l.timerQueue.Len())
		}
	}

	l.eventQueue.Drain()
	l.timerQueue.Close()
	_ = l.selector.Remove(l.timerChannel)
	_ = l.selector.Remove(l.eventChannel)
	_ = l.timerChannel.Close()
	_ = l.eventChannel.Close()
	return l.selector.Close()
}

// Close requests the loop stop; it returns once the request has been
// delivered, not once the loop has actually exited — call Join for that.
// Safe to call multiple times and from any goroutine.
func (l *EventLoop) Close() {
	if l.state.testAndSet(flagClosing) {
		return
	}
	_ = l.eventChannel.Wake()
}

// Join blocks until Loop has returned. Safe to call from multiple
// goroutines and any number of times, including before Loop starts.
func (l *EventLoop) Join() {
	<-l.done
}
