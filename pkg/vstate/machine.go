package vstate

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Mode selects how protocol violations are handled.
type Mode uint8

const (
	// ModeLenient records the violation, dumps the machine's full history
	// to the diagnostic sink and keeps going. This is the default.
	ModeLenient Mode = iota
	// ModeStrict panics with a *ViolationError on the first violation.
	ModeStrict
)

// Operation names as they appear in recorded transitions and dump lines.
const (
	opAllocateNew        = "allocateNew"
	opSetInitialCapacity = "setInitialCapacity"
	opWrite              = "write"
	opRead               = "read"
	opSetValueCount      = "setValueCount"
	opGetValueCount      = "getValueCount"
	opCopy               = "copy"
	opDecrementAlloc     = "decrementAllocationMonitor"
	opSplitAndTransfer   = "splitAndTransfer"
	opTransfer           = "transfer"
	opLoad               = "load"
	opZeroVector         = "zeroVector"
	opReAlloc            = "reAlloc"
	opRelease            = "release"
)

const reasonDisallowed = "disallowed transition"

// currentMode is process-wide, like the shared sink. Machines copy it at
// construction, so set it during startup before vectors exist.
var currentMode Mode

// SetMode sets the failure mode applied to machines constructed after the
// call. Existing machines keep the mode they were born with.
func SetMode(mode Mode) { currentMode = mode }

// CurrentMode is the failure mode applied to new machines.
func CurrentMode() Mode { return currentMode }

// ViolationError is the strict-mode panic payload.
type ViolationError struct {
	Transition Transition
	InstanceID int64
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("vector protocol violation on instance %d: %s", e.InstanceID, e.Transition)
}

// Machine verifies the lifecycle discipline of a single vector instance:
// allocate, write at strictly increasing indexes, seal with a value count,
// read within bounds, then release or transfer. One machine per vector,
// owned by whoever owns the vector; machines are not safe for concurrent
// use, only the shared sink synchronizes.
//
// Every operation returns true so call sites can embed the checker in
// assertions and strip it from production builds (see Enabled). All
// methods are safe on a nil receiver and return true immediately, which
// is what NewMachine hands out when checking is compiled out.
type Machine struct {
	state    State
	mode     Mode
	id       int64
	recorder Recorder
	sink     *Sink
	metrics  *Metrics
	logger   *slog.Logger
}

// MachineOptions customizes a machine at construction.
type MachineOptions func(*Machine)

// WithMode overrides the process-wide failure mode for this machine.
func WithMode(mode Mode) MachineOptions {
	return func(m *Machine) {
		m.mode = mode
	}
}

// WithSink routes this machine's history dumps to sink instead of the
// process-wide one.
func WithSink(sink *Sink) MachineOptions {
	return func(m *Machine) {
		m.sink = sink
	}
}

// WithMetrics attaches counters. A nil *Metrics counts nothing.
func WithMetrics(metrics *Metrics) MachineOptions {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) MachineOptions {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger.With("component", "vstate")
		}
	}
}

// NewMachine creates a verifier for one new vector instance. Returns nil
// when checking is compiled out; a nil machine accepts every call.
func NewMachine(opts ...MachineOptions) *Machine {
	if !Enabled {
		return nil
	}

	m := &Machine{
		state:  Initial(),
		mode:   CurrentMode(),
		id:     nextInstanceID(),
		sink:   sharedSink,
		logger: slog.Default().With("component", "vstate"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID is this machine's instance id, unique within the process.
func (m *Machine) ID() int64 {
	if m == nil {
		return 0
	}
	return m.id
}

// State is the current lifecycle state.
func (m *Machine) State() State {
	if m == nil {
		return Initial()
	}
	return m.state
}

// History is a copy of every transition attempted so far.
func (m *Machine) History() []Transition {
	if m == nil {
		return nil
	}
	return m.recorder.History()
}

// AllocateNew tracks a buffer allocation. Valid from any live state; the
// write cursor resets.
func (m *Machine) AllocateNew() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.step(opAllocateNew, Writable(-1))
}

// SetInitialCapacity tracks the capacity hint. Only legal before the
// vector is allocated.
func (m *Machine) SetInitialCapacity(n int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	if m.state.kind != KindInitial {
		return m.fail(opSetInitialCapacity, reasonDisallowed)
	}
	return m.step(opSetInitialCapacity, m.state)
}

// Write tracks a value written at index i. Indexes must strictly increase
// within one writable episode.
func (m *Machine) Write(i int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	if m.state.kind != KindWritable {
		return m.fail(opWrite, reasonDisallowed)
	}
	if i < 0 {
		return m.fail(opWrite, fmt.Sprintf("write negative index %d < 0", i))
	}
	if hwm := m.state.highWaterMark; i <= hwm {
		return m.fail(opWrite, fmt.Sprintf("write before last index written %d <= %d", i, hwm))
	}
	return m.step(opWrite, Writable(i))
}

// Read tracks a value read at index i. Only legal once sealed, within
// [0, maxIndex].
func (m *Machine) Read(i int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	if m.state.kind != KindReadOnly {
		return m.fail(opRead, reasonDisallowed)
	}
	if reason, ok := m.checkRead(i); !ok {
		return m.fail(opRead, reason)
	}
	return m.step(opRead, m.state)
}

func (m *Machine) checkRead(i int) (string, bool) {
	if i < 0 {
		return fmt.Sprintf("read negative index %d < 0", i), false
	}
	if max := m.state.maxIndex; i > max {
		return fmt.Sprintf("read past max index written %d > %d", i, max), false
	}
	return "", true
}

// SetValueCount tracks sealing the vector at count values.
//
// From the initial state only count 0 is legal and seals an empty vector.
// From the writable state the count must exceed the high-water mark, or
// sealing would cut off values already written. Resealing a read-only
// vector with its exact current count is tolerated with a warning;
// any other count is a violation.
func (m *Machine) SetValueCount(count int) bool {
	if m == nil {
		return true
	}
	switch m.state.kind {
	case KindInitial:
		if count != 0 {
			return m.fail(opSetValueCount, fmt.Sprintf("cannot set non 0 value count (%d) for non allocated vector", count))
		}
		return m.step(opSetValueCount, ReadOnly(-1))
	case KindWritable:
		if count < 0 {
			return m.fail(opSetValueCount, fmt.Sprintf("write negative size %d < 0", count))
		}
		if hwm := m.state.highWaterMark; count <= hwm {
			return m.fail(opSetValueCount, fmt.Sprintf("set size smaller than last index written %d <= %d", count, hwm))
		}
		return m.step(opSetValueCount, ReadOnly(count-1))
	case KindReadOnly:
		max := m.state.maxIndex
		if count != max+1 {
			return m.fail(opSetValueCount, fmt.Sprintf("setValueCount %d on readonly state of maxIndex %d", count, max))
		}
		// Redundant reseal. Harmless, but the caller is confused about
		// who sealed the vector, so leave a trail.
		m.metrics.redundant()
		m.logger.Warn("calling setValueCount again with no effect",
			"instance", m.id, "count", count, "maxIndex", max, "caller", callsite(1))
		return m.step(opSetValueCount, m.state)
	default:
		return true
	}
}

// GetValueCount tracks reading the value count. Legal in every live state.
func (m *Machine) GetValueCount() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.step(opGetValueCount, m.state)
}

// Copy is a lifecycle hook with no modeled transition; any call is a
// violation.
func (m *Machine) Copy(from, to int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.fail(opCopy, reasonDisallowed)
}

// DecrementAllocationMonitor is a lifecycle hook with no modeled
// transition; any call is a violation.
func (m *Machine) DecrementAllocationMonitor() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.fail(opDecrementAlloc, reasonDisallowed)
}

// ReAlloc is a lifecycle hook with no modeled transition; any call is a
// violation. Vectors sized correctly up front never realloc, so a grow
// mid-write is exactly the kind of event the checker exists to surface.
func (m *Machine) ReAlloc() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.fail(opReAlloc, reasonDisallowed)
}

// SplitAndTransfer tracks handing off length values starting at start to
// another vector. Only legal once sealed; both ends of the range must be
// readable. The source keeps its state, the destination loads the slice
// under its own machine.
func (m *Machine) SplitAndTransfer(start, length int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	if m.state.kind != KindReadOnly {
		return m.fail(opSplitAndTransfer, reasonDisallowed)
	}
	if reason, ok := m.checkRead(start); !ok {
		return m.fail(opSplitAndTransfer, reason)
	}
	if reason, ok := m.checkRead(start + length - 1); !ok {
		return m.fail(opSplitAndTransfer, reason)
	}
	return m.step(opSplitAndTransfer, m.state)
}

// Transfer tracks handing the whole buffer to another vector. Only legal
// once sealed; the source is empty afterwards.
func (m *Machine) Transfer() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	if m.state.kind != KindReadOnly {
		return m.fail(opTransfer, reasonDisallowed)
	}
	return m.step(opTransfer, Initial())
}

// Load tracks adopting count values from a transferred or deserialized
// buffer. Only legal on an empty vector.
func (m *Machine) Load(count int) bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	switch m.state.kind {
	case KindInitial:
		return m.step(opLoad, ReadOnly(count-1))
	case KindReadOnly:
		return m.fail(opLoad, "can not load in non empty vector")
	default:
		return m.fail(opLoad, reasonDisallowed)
	}
}

// ZeroVector tracks zero-filling the buffer. Zeroing a writable vector
// resets the write cursor; zeroing a sealed vector discards its values.
func (m *Machine) ZeroVector() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	switch m.state.kind {
	case KindWritable:
		return m.step(opZeroVector, Writable(-1))
	case KindReadOnly:
		return m.step(opZeroVector, Initial())
	default:
		return m.step(opZeroVector, m.state)
	}
}

// Release tracks returning the buffer to the allocator. Valid from any
// live state.
func (m *Machine) Release() bool {
	if m == nil || m.state.kind == KindFailed {
		return true
	}
	return m.step(opRelease, Initial())
}

// step commits an accepted transition.
func (m *Machine) step(op string, to State) bool {
	m.recorder.record(Transition{From: m.state, Op: op, To: to})
	m.state = to
	m.metrics.transition()
	return true
}

// fail commits a transition into the failed state and applies the failure
// mode: strict panics, lenient dumps the full history to the sink and
// carries on. Either way the recorder freezes so later calls cannot
// disturb the evidence.
func (m *Machine) fail(op, reason string) bool {
	t := Transition{From: m.state, Op: op, To: Failed(reason)}
	m.recorder.record(t)
	m.state = t.To
	m.metrics.violation()

	if m.mode == ModeStrict {
		panic(&ViolationError{Transition: t, InstanceID: m.id})
	}

	m.sink.Dump(RunID(), m.id, m.recorder.Dropped(), m.recorder.History())
	m.metrics.dump()
	m.logger.Error("vector protocol violation",
		"instance", m.id, "op", op, "reason", reason, "from", t.From.String())
	return true
}

// callsite reports the file:line that invoked the facade, for logs that
// need to say who misused the vector.
func callsite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
