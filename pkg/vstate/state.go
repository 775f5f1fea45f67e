package vstate

import "fmt"

// Kind identifies a lifecycle state without its payload.
type Kind uint8

const (
	KindInitial Kind = iota
	KindWritable
	KindReadOnly
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "INITIAL"
	case KindWritable:
		return "WRITABLE"
	case KindReadOnly:
		return "READONLY"
	case KindFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// State is one point in a vector's lifecycle. Build states with the
// Initial, Writable, ReadOnly and Failed constructors so the payload
// fields carry their documented sentinels.
type State struct {
	kind Kind
	// last index written; -1 until the first write lands
	highWaterMark int
	// value count minus one; -1 for a sealed empty vector
	maxIndex int
	reason   string
}

// Initial is the unallocated state.
func Initial() State {
	return State{kind: KindInitial, highWaterMark: -1, maxIndex: -1}
}

// Writable is the allocated, open-for-writes state.
func Writable(highWaterMark int) State {
	return State{kind: KindWritable, highWaterMark: highWaterMark, maxIndex: -1}
}

// ReadOnly is the sealed state. maxIndex is the value count minus one,
// so a sealed empty vector carries -1.
func ReadOnly(maxIndex int) State {
	return State{kind: KindReadOnly, highWaterMark: -1, maxIndex: maxIndex}
}

// Failed is the absorbing error state.
func Failed(reason string) State {
	return State{kind: KindFailed, highWaterMark: -1, maxIndex: -1, reason: reason}
}

func (s State) Kind() Kind { return s.kind }

// HighWaterMark is the last index written, -1 if none. Only meaningful
// while writable.
func (s State) HighWaterMark() int { return s.highWaterMark }

// MaxIndex is the highest readable index, -1 for an empty vector. Only
// meaningful while read-only.
func (s State) MaxIndex() int { return s.maxIndex }

// Reason is the violation that produced a failed state, empty otherwise.
func (s State) Reason() string { return s.reason }

func (s State) String() string {
	switch s.kind {
	case KindWritable:
		return fmt.Sprintf("WRITABLE(hwm=%d)", s.highWaterMark)
	case KindReadOnly:
		return fmt.Sprintf("READONLY(max=%d)", s.maxIndex)
	case KindFailed:
		return "FAILED(" + s.reason + ")"
	default:
		return s.kind.String()
	}
}

// Transition is one attempted operation and its outcome. Self-transitions
// (getValueCount, a legal read) are recorded too, so a dumped history
// reads as the full interaction with the vector.
type Transition struct {
	From State
	Op   string
	To   State
}

func (t Transition) String() string {
	return t.From.String() + " -(" + t.Op + ")-> " + t.To.String()
}
