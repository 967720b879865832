package reactor

import "sync/atomic"

// loopFlag is a bit in loopState's bitset.
type loopFlag uint32

const (
	// flagLooping is set for the duration of Loop() and cleared just
	// before it returns.
	flagLooping loopFlag = 1 << iota
	// flagJoinable is set once Loop() has returned, so Register and
	// Deregister called from other goroutines can tell the loop has
	// actually exited rather than merely been asked to stop.
	flagJoinable
	// flagClosing is set by the first Close() caller to win the race,
	// so later callers no-op instead of re-running teardown.
	flagClosing
)

// loopState is a cache-line-padded atomic bitset backing EventLoop's
// lifecycle, following the same lock-free CAS approach as the teacher's
// FastState: readers never block, writers retry on CAS failure.
type loopState struct {
	_ [sizeOfCacheLine]byte
	v atomic.Uint32
	_ [sizeOfCacheLine - sizeOfAtomicUint32]byte
}

func (s *loopState) load() loopFlag {
	return loopFlag(s.v.Load())
}

func (s *loopState) has(flag loopFlag) bool {
	return loopFlag(s.v.Load())&flag != 0
}

// set atomically ORs flag into the bitset via CAS retry.
func (s *loopState) set(flag loopFlag) {
	for {
		old := s.v.Load()
		next := old | uint32(flag)
		if old == next || s.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// clear atomically ANDs flag out of the bitset via CAS retry.
func (s *loopState) clear(flag loopFlag) {
	for {
		old := s.v.Load()
		next := old &^ uint32(flag)
		if old == next || s.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// testAndSet atomically sets flag and reports whether it was already set,
// used for the "first Close() wins" pattern.
func (s *loopState) testAndSet(flag loopFlag) (wasSet bool) {
	for {
		old := s.v.Load()
		if old&uint32(flag) != 0 {
			return true
		}
		if s.v.CompareAndSwap(old, old|uint32(flag)) {
			return false
		}
	}
}
