package pipeline

import (
	"sync/atomic"
	"time"
)

// budget tracks the per-invocation call and wall-clock limits. The call
// counter is shared only within a single subject-cycle.
type budget struct {
	maxCalls int64
	calls    atomic.Int64
	extracts atomic.Int64
	deadline time.Time
}

func newBudget(maxCalls int, timeBudget time.Duration, now time.Time) *budget {
	return &budget{
		maxCalls: int64(maxCalls),
		deadline: now.Add(timeBudget),
	}
}

// timeExceeded reports whether the wall-clock budget is spent.
func (b *budget) timeExceeded(now time.Time) bool {
	return !now.Before(b.deadline)
}

// remaining returns how many calls are still allowed.
func (b *budget) remaining() int64 {
	r := b.maxCalls - b.calls.Load()
	if r < 0 {
		return 0
	}
	return r
}

// tryReserve atomically claims one call attempt, returning false when the
// limit is reached.
func (b *budget) tryReserve() bool {
	for {
		cur := b.calls.Load()
		if cur >= b.maxCalls {
			return false
		}
		if b.calls.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// used returns the number of call attempts made so far.
func (b *budget) used() int64 {
	return b.calls.Load()
}

// recordExtracts notes how many URLs the extraction provider was charged for.
func (b *budget) recordExtracts(n int) {
	b.extracts.Add(int64(n))
}

// extractsUsed returns the total URLs sent for extraction this run.
func (b *budget) extractsUsed() int64 {
	return b.extracts.Load()
}
