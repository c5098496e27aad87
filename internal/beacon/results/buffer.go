package results

import "ghostbeacon/pkg/shared"

// Capacity is the fixed number of results the buffer can hold between
// successful check-ins. Results produced while the buffer is full are
// dropped, not queued: delivery is best effort.
const Capacity = 64

// Buffer is an ordered holding area for command results awaiting a confirmed
// transmission. It is owned by the engine and never shared across goroutines.
type Buffer struct {
	items []shared.CommandResult
}

func NewBuffer() *Buffer {
	return &Buffer{items: make([]shared.CommandResult, 0, Capacity)}
}

// Append stores a result. It returns false when the buffer is at capacity,
// in which case the result is discarded.
func (b *Buffer) Append(r shared.CommandResult) bool {
	if len(b.items) >= Capacity {
		return false
	}
	b.items = append(b.items, r)
	return true
}

func (b *Buffer) Len() int { return len(b.items) }

func (b *Buffer) Empty() bool { return len(b.items) == 0 }

// Snapshot returns a copy of the buffered results in append order. The copy
// stays valid if the buffer is cleared afterwards.
func (b *Buffer) Snapshot() []shared.CommandResult {
	out := make([]shared.CommandResult, len(b.items))
	copy(out, b.items)
	return out
}

// Clear empties the buffer. Call only after a check-in reported
// protocol-level success; a failed check-in must leave the buffer intact so
// results are retried whole on the next cycle.
func (b *Buffer) Clear() {
	b.items = b.items[:0]
}
