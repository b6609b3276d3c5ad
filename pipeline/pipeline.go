// Package pipeline buffers command results so a batch can be emulated on a
// sharded store where commands run one by one against different nodes.
package pipeline

// Result is the outcome of one command inside a batch.
type Result struct {
	Val any
	Err error
}

// Buffer is a two-state recorder: Idle or Buffering. It is not safe for
// concurrent use; a batch belongs to a single goroutine.
type Buffer struct {
	buffering bool
	results   []Result
}

// Begin enters Buffering and drops anything recorded earlier.
func (b *Buffer) Begin() {
	b.buffering = true
	b.results = b.results[:0]
}

func (b *Buffer) Buffering() bool { return b.buffering }

// Add records a result while buffering and reports whether it was taken.
// Outside a batch the caller keeps the result for itself.
func (b *Buffer) Add(val any, err error) bool {
	if !b.buffering {
		return false
	}
	b.results = append(b.results, Result{Val: val, Err: err})
	return true
}

// Exec returns the recorded results in insertion order, clears the buffer and
// returns to Idle. Calling Exec while Idle yields an empty slice.
func (b *Buffer) Exec() []Result {
	out := make([]Result, len(b.results))
	copy(out, b.results)
	b.results = b.results[:0]
	b.buffering = false
	return out
}

func (b *Buffer) Len() int { return len(b.results) }
