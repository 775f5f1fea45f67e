package vstate

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// newTestMachine isolates the machine from the process-wide sink so tests
// never append to a real state-history file.
func newTestMachine(t *testing.T, opts ...MachineOptions) *Machine {
	t.Helper()
	sink := NewSink(filepath.Join(t.TempDir(), "state-history"), testLogger())
	all := append([]MachineOptions{WithSink(sink), WithLogger(testLogger())}, opts...)
	return NewMachine(all...)
}

func toWritable(m *Machine, highWaterMark int) {
	m.AllocateNew()
	for i := 0; i <= highWaterMark; i++ {
		m.Write(i)
	}
}

func toReadOnly(m *Machine, count int) {
	m.AllocateNew()
	for i := 0; i < count; i++ {
		m.Write(i)
	}
	m.SetValueCount(count)
}

func TestMachine_TransitionTable(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *Machine)
		op     func(m *Machine) bool
		want   Kind
		reason string
	}{
		// from INITIAL
		{"initial allocateNew", nil, (*Machine).AllocateNew, KindWritable, ""},
		{"initial setInitialCapacity", nil, func(m *Machine) bool { return m.SetInitialCapacity(64) }, KindInitial, ""},
		{"initial setValueCount zero", nil, func(m *Machine) bool { return m.SetValueCount(0) }, KindReadOnly, ""},
		{"initial setValueCount nonzero", nil, func(m *Machine) bool { return m.SetValueCount(3) },
			KindFailed, "cannot set non 0 value count (3) for non allocated vector"},
		{"initial setValueCount negative", nil, func(m *Machine) bool { return m.SetValueCount(-1) },
			KindFailed, "cannot set non 0 value count (-1) for non allocated vector"},
		{"initial getValueCount", nil, (*Machine).GetValueCount, KindInitial, ""},
		{"initial load", nil, func(m *Machine) bool { return m.Load(5) }, KindReadOnly, ""},
		{"initial zeroVector", nil, (*Machine).ZeroVector, KindInitial, ""},
		{"initial release", nil, (*Machine).Release, KindInitial, ""},
		{"initial write", nil, func(m *Machine) bool { return m.Write(0) }, KindFailed, reasonDisallowed},
		{"initial read", nil, func(m *Machine) bool { return m.Read(0) }, KindFailed, reasonDisallowed},
		{"initial transfer", nil, (*Machine).Transfer, KindFailed, reasonDisallowed},
		{"initial splitAndTransfer", nil, func(m *Machine) bool { return m.SplitAndTransfer(0, 1) }, KindFailed, reasonDisallowed},

		// from WRITABLE
		{"writable first write", func(m *Machine) { toWritable(m, -1) },
			func(m *Machine) bool { return m.Write(0) }, KindWritable, ""},
		{"writable increasing write", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Write(4) }, KindWritable, ""},
		{"writable sparse write", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Write(9) }, KindWritable, ""},
		{"writable negative write", func(m *Machine) { toWritable(m, -1) },
			func(m *Machine) bool { return m.Write(-2) }, KindFailed, "write negative index -2 < 0"},
		{"writable rewrite same index", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Write(3) }, KindFailed, "write before last index written 3 <= 3"},
		{"writable backwards write", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Write(1) }, KindFailed, "write before last index written 1 <= 3"},
		{"writable seal", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetValueCount(4) }, KindReadOnly, ""},
		{"writable seal above hwm", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetValueCount(10) }, KindReadOnly, ""},
		{"writable seal negative", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetValueCount(-1) }, KindFailed, "write negative size -1 < 0"},
		{"writable seal at hwm", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetValueCount(3) }, KindFailed, "set size smaller than last index written 3 <= 3"},
		{"writable seal below hwm", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetValueCount(2) }, KindFailed, "set size smaller than last index written 2 <= 3"},
		{"writable seal empty", func(m *Machine) { toWritable(m, -1) },
			func(m *Machine) bool { return m.SetValueCount(0) }, KindReadOnly, ""},
		{"writable getValueCount", func(m *Machine) { toWritable(m, 3) }, (*Machine).GetValueCount, KindWritable, ""},
		{"writable zeroVector", func(m *Machine) { toWritable(m, 3) }, (*Machine).ZeroVector, KindWritable, ""},
		{"writable release", func(m *Machine) { toWritable(m, 3) }, (*Machine).Release, KindInitial, ""},
		{"writable allocateNew", func(m *Machine) { toWritable(m, 3) }, (*Machine).AllocateNew, KindWritable, ""},
		{"writable setInitialCapacity", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SetInitialCapacity(64) }, KindFailed, reasonDisallowed},
		{"writable read", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Read(0) }, KindFailed, reasonDisallowed},
		{"writable load", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.Load(4) }, KindFailed, reasonDisallowed},
		{"writable transfer", func(m *Machine) { toWritable(m, 3) }, (*Machine).Transfer, KindFailed, reasonDisallowed},
		{"writable splitAndTransfer", func(m *Machine) { toWritable(m, 3) },
			func(m *Machine) bool { return m.SplitAndTransfer(0, 1) }, KindFailed, reasonDisallowed},

		// from READONLY
		{"readonly read first", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Read(0) }, KindReadOnly, ""},
		{"readonly read last", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Read(4) }, KindReadOnly, ""},
		{"readonly read past end", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Read(5) }, KindFailed, "read past max index written 5 > 4"},
		{"readonly read negative", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Read(-1) }, KindFailed, "read negative index -1 < 0"},
		{"readonly getValueCount", func(m *Machine) { toReadOnly(m, 5) }, (*Machine).GetValueCount, KindReadOnly, ""},
		{"readonly reseal exact", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SetValueCount(5) }, KindReadOnly, ""},
		{"readonly reseal larger", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SetValueCount(6) }, KindFailed, "setValueCount 6 on readonly state of maxIndex 4"},
		{"readonly reseal smaller", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SetValueCount(2) }, KindFailed, "setValueCount 2 on readonly state of maxIndex 4"},
		{"readonly split in range", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SplitAndTransfer(1, 3) }, KindReadOnly, ""},
		{"readonly split whole", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SplitAndTransfer(0, 5) }, KindReadOnly, ""},
		{"readonly split past end", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SplitAndTransfer(3, 5) }, KindFailed, "read past max index written 7 > 4"},
		{"readonly split negative start", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SplitAndTransfer(-1, 2) }, KindFailed, "read negative index -1 < 0"},
		{"readonly split empty range", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SplitAndTransfer(0, 0) }, KindFailed, "read negative index -1 < 0"},
		{"readonly transfer", func(m *Machine) { toReadOnly(m, 5) }, (*Machine).Transfer, KindInitial, ""},
		{"readonly release", func(m *Machine) { toReadOnly(m, 5) }, (*Machine).Release, KindInitial, ""},
		{"readonly zeroVector", func(m *Machine) { toReadOnly(m, 5) }, (*Machine).ZeroVector, KindInitial, ""},
		{"readonly allocateNew", func(m *Machine) { toReadOnly(m, 5) }, (*Machine).AllocateNew, KindWritable, ""},
		{"readonly write", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Write(6) }, KindFailed, reasonDisallowed},
		{"readonly load", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.Load(5) }, KindFailed, "can not load in non empty vector"},
		{"readonly setInitialCapacity", func(m *Machine) { toReadOnly(m, 5) },
			func(m *Machine) bool { return m.SetInitialCapacity(64) }, KindFailed, reasonDisallowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t)
			if tt.setup != nil {
				tt.setup(m)
			}

			assert.True(t, tt.op(m))
			assert.Equal(t, tt.want, m.State().Kind())
			if tt.reason != "" {
				assert.Equal(t, tt.reason, m.State().Reason())
			}
		})
	}
}

func TestMachine_NeverOverriddenHooks(t *testing.T) {
	setups := []struct {
		name  string
		setup func(m *Machine)
	}{
		{"initial", nil},
		{"writable", func(m *Machine) { toWritable(m, 3) }},
		{"readonly", func(m *Machine) { toReadOnly(m, 4) }},
	}
	hooks := []struct {
		name string
		op   func(m *Machine) bool
	}{
		{"copy", func(m *Machine) bool { return m.Copy(0, 1) }},
		{"decrementAllocationMonitor", (*Machine).DecrementAllocationMonitor},
		{"reAlloc", (*Machine).ReAlloc},
	}

	for _, s := range setups {
		for _, h := range hooks {
			t.Run(s.name+" "+h.name, func(t *testing.T) {
				m := newTestMachine(t)
				if s.setup != nil {
					s.setup(m)
				}

				assert.True(t, h.op(m))
				assert.Equal(t, KindFailed, m.State().Kind())
				assert.Equal(t, reasonDisallowed, m.State().Reason())
			})
		}
	}
}

func TestMachine_FailedIsAbsorbing(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := newTestMachine(t, WithMetrics(metrics))
	toWritable(m, 3)
	m.Write(3) // rewrite, violation

	require.Equal(t, KindFailed, m.State().Kind())
	reason := m.State().Reason()
	frozen := len(m.History())

	ops := []func() bool{
		m.AllocateNew,
		func() bool { return m.SetInitialCapacity(8) },
		func() bool { return m.Write(10) },
		func() bool { return m.Read(0) },
		func() bool { return m.SetValueCount(4) },
		m.GetValueCount,
		func() bool { return m.Copy(0, 1) },
		m.DecrementAllocationMonitor,
		func() bool { return m.SplitAndTransfer(0, 1) },
		m.Transfer,
		func() bool { return m.Load(4) },
		m.ZeroVector,
		m.ReAlloc,
		m.Release,
	}
	for _, op := range ops {
		assert.True(t, op())
	}

	assert.Equal(t, KindFailed, m.State().Kind())
	assert.Equal(t, reason, m.State().Reason())
	assert.Len(t, m.History(), frozen, "absorbed ops must not grow the history")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Dumps), "absorbed ops must not dump again")
}

func TestMachine_WriteIndexesStrictlyIncrease(t *testing.T) {
	m := newTestMachine(t)
	m.AllocateNew()

	for _, i := range []int{0, 1, 5, 6, 100} {
		m.Write(i)
		require.Equal(t, KindWritable, m.State().Kind())
		require.Equal(t, i, m.State().HighWaterMark())
	}
}

func TestMachine_AllocateResetsWriteCursor(t *testing.T) {
	m := newTestMachine(t)
	toWritable(m, 7)

	m.AllocateNew()
	assert.Equal(t, -1, m.State().HighWaterMark())

	// index 0 is legal again on the fresh buffer
	m.Write(0)
	assert.Equal(t, KindWritable, m.State().Kind())
}

func TestMachine_ZeroVectorResetsWriteCursor(t *testing.T) {
	m := newTestMachine(t)
	toWritable(m, 7)

	m.ZeroVector()
	require.Equal(t, KindWritable, m.State().Kind())
	require.Equal(t, -1, m.State().HighWaterMark())

	m.Write(0)
	assert.Equal(t, KindWritable, m.State().Kind())
}

func TestMachine_SealEmptyVector(t *testing.T) {
	m := newTestMachine(t)

	m.SetValueCount(0)
	require.Equal(t, KindReadOnly, m.State().Kind())
	require.Equal(t, -1, m.State().MaxIndex())

	m.GetValueCount()
	require.Equal(t, KindReadOnly, m.State().Kind())

	// an empty vector has nothing readable
	m.Read(0)
	assert.Equal(t, KindFailed, m.State().Kind())
	assert.Equal(t, "read past max index written 0 > -1", m.State().Reason())
}

func TestMachine_HistoryChainIsDeterministic(t *testing.T) {
	m := newTestMachine(t)
	m.SetInitialCapacity(16)
	toReadOnly(m, 4)
	m.Read(2)
	m.SplitAndTransfer(1, 2)
	m.Transfer()
	m.AllocateNew()
	m.Write(0)
	m.Write(0) // violation

	history := m.History()
	require.NotEmpty(t, history)

	for i := 1; i < len(history); i++ {
		require.Equal(t, history[i-1].To, history[i].From,
			"transition %d does not chain from its predecessor", i)
	}
	assert.Equal(t, m.State(), history[len(history)-1].To)
}

func TestMachine_NilReceiver(t *testing.T) {
	var m *Machine

	assert.True(t, m.AllocateNew())
	assert.True(t, m.SetInitialCapacity(8))
	assert.True(t, m.Write(0))
	assert.True(t, m.Read(0))
	assert.True(t, m.SetValueCount(1))
	assert.True(t, m.GetValueCount())
	assert.True(t, m.Copy(0, 1))
	assert.True(t, m.DecrementAllocationMonitor())
	assert.True(t, m.SplitAndTransfer(0, 1))
	assert.True(t, m.Transfer())
	assert.True(t, m.Load(1))
	assert.True(t, m.ZeroVector())
	assert.True(t, m.ReAlloc())
	assert.True(t, m.Release())

	assert.Equal(t, KindInitial, m.State().Kind())
	assert.Nil(t, m.History())
	assert.Zero(t, m.ID())
}

func TestMachine_InstanceIDsNeverRecycle(t *testing.T) {
	a := newTestMachine(t)
	b := newTestMachine(t)

	assert.Greater(t, a.ID(), int64(0))
	assert.Greater(t, b.ID(), a.ID())
}

func TestMachine_ModeIsSetAtConstruction(t *testing.T) {
	require.Equal(t, ModeLenient, CurrentMode())

	SetMode(ModeStrict)
	defer SetMode(ModeLenient)

	m := newTestMachine(t)
	assert.Panics(t, func() { m.Write(0) })
}

func TestMachine_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	m := newTestMachine(t, WithMetrics(metrics))
	toReadOnly(m, 2) // allocate + 2 writes + seal
	m.Read(0)
	m.SetValueCount(2) // redundant reseal
	m.Read(9)          // violation

	assert.Equal(t, float64(6), testutil.ToFloat64(metrics.Transitions))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Violations))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Redundant))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Dumps))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Initial(), "INITIAL"},
		{Writable(-1), "WRITABLE(hwm=-1)"},
		{Writable(3), "WRITABLE(hwm=3)"},
		{ReadOnly(7), "READONLY(max=7)"},
		{ReadOnly(-1), "READONLY(max=-1)"},
		{Failed("disallowed transition"), "FAILED(disallowed transition)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestTransition_String(t *testing.T) {
	tr := Transition{From: Writable(3), Op: "write", To: Failed("write before last index written 3 <= 3")}
	assert.Equal(t, "WRITABLE(hwm=3) -(write)-> FAILED(write before last index written 3 <= 3)", tr.String())
}
