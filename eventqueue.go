package reactor

// Task is a nullary closure consumed once by the loop thread.
type Task func()

// EventQueueType names a concrete EventQueue implementation.
type EventQueueType int

const (
	// EventQueueLockFree selects the multi-producer lock-free queue
	// (default).
	EventQueueLockFree EventQueueType = iota
	// EventQueueMutex selects the mutex + chunked-deque queue.
	EventQueueMutex
	// EventQueueDoubleBuffer selects the double-buffered swap queue.
	EventQueueDoubleBuffer
)

func (t EventQueueType) String() string {
	switch t {
	case EventQueueMutex:
		return "mutex"
	case EventQueueDoubleBuffer:
		return "double_buffer"
	default:
		return "lock_free"
	}
}

// EventQueue is a producer/consumer queue of deferred task closures.
// Producers are any goroutine; the sole consumer is the owning loop.
// Implementations guarantee: a task enqueued by any goroutine executes
// exactly once, on the loop goroutine, in some order; per-producer FIFO
// ordering is preserved except where the implementation's doc comment
// says otherwise.
type EventQueue interface {
	// Push enqueues task, safe to call from any goroutine. It returns true
	// if this push transitioned the queue from empty to non-empty, the
	// signal the caller uses to decide whether to wake the loop.
	Push(task Task) (becameNonEmpty bool)

	// Drain runs every pending task, in this implementation's delivery
	// order. Must be called only from the loop goroutine.
	Drain()

	// Len reports the approximate number of pending tasks. Intended for
	// metrics, not for control flow.
	Len() int
}

// NewEventQueue constructs an EventQueue of the requested kind.
func NewEventQueue(kind EventQueueType) EventQueue {
	switch kind {
	case EventQueueMutex:
		return newMutexEventQueue()
	case EventQueueDoubleBuffer:
		return newDoubleBufferEventQueue()
	default:
		return newLockFreeEventQueue()
	}
}
