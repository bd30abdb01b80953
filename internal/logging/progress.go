package logging

import "sync/atomic"

// ProgressCounter decides which completions of a concurrent batch deserve a
// progress log line: every Nth completion and the final one. It is safe for
// concurrent use and each milestone is reported to exactly one caller.
type ProgressCounter struct {
	every int64
	total int64
	done  atomic.Int64
}

// NewProgressCounter constructs a counter for total items that reports every
// `every` completions. A non-positive interval only reports the final item.
func NewProgressCounter(every, total int) *ProgressCounter {
	return &ProgressCounter{every: int64(every), total: int64(total)}
}

// Add records one completion. It returns the running count and whether the
// caller should log it.
func (p *ProgressCounter) Add() (int64, bool) {
	if p == nil {
		return 0, false
	}
	n := p.done.Add(1)
	if n == p.total {
		return n, true
	}
	return n, p.every > 0 && n%p.every == 0
}

// Done returns the number of completions recorded so far.
func (p *ProgressCounter) Done() int64 {
	if p == nil {
		return 0
	}
	return p.done.Load()
}

// Total returns the expected number of completions.
func (p *ProgressCounter) Total() int64 {
	if p == nil {
		return 0
	}
	return p.total
}
