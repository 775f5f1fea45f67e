package vstate

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
)

var (
	ErrSinkOpen   = errors.New("diagnostic sink already opened")
	ErrSinkClosed = errors.New("diagnostic sink closed")
)

// maxHistory bounds each machine's recorded transitions. Vectors cycle
// through a handful of states per batch, so 4096 entries cover any sane
// interaction; a machine that blows past it is being hammered in a loop
// and the tail is what matters.
const maxHistory = 4096

// Recorder holds the transitions one machine has attempted, oldest first.
// Once maxHistory entries exist it becomes a ring and each new entry
// overwrites the oldest. It freezes permanently once a transition into
// the failed state lands, so the evidence as of the first violation
// survives whatever the caller does next.
type Recorder struct {
	entries []Transition
	// next overwrite position once the ring is saturated
	head    int
	dropped int
	frozen  bool
}

func (r *Recorder) record(t Transition) {
	if r.frozen {
		return
	}
	if len(r.entries) < maxHistory {
		r.entries = append(r.entries, t)
	} else {
		r.entries[r.head] = t
		r.head = (r.head + 1) % maxHistory
		r.dropped++
	}
	if t.To.kind == KindFailed {
		r.frozen = true
	}
}

// History returns a copy of the recorded transitions, oldest first.
func (r *Recorder) History() []Transition {
	if len(r.entries) == 0 {
		return nil
	}
	out := make([]Transition, 0, len(r.entries))
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

// Dropped is how many old entries eviction discarded.
func (r *Recorder) Dropped() int { return r.dropped }

// Frozen reports whether a violation has locked the recorder.
func (r *Recorder) Frozen() bool { return r.frozen }

// DefaultHistoryPath is where lenient-mode dumps land unless redirected
// with SetHistoryPath.
const DefaultHistoryPath = "state-history"

// Sink is the append-only file violation histories are dumped to. One
// sink is shared by every machine in the process unless a machine is
// built WithSink; the mutex is the only synchronization machines have.
//
// The file opens lazily on the first dump. Dumps are fatal on I/O error:
// a verifier that cannot report is worse than a crash, because it lets a
// protocol violation pass silently.
type Sink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	closed bool
	logger *slog.Logger
}

// NewSink creates a sink appending to path. A nil logger means
// slog.Default().
func NewSink(path string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		path:   path,
		logger: logger.With("component", "vstate-sink"),
	}
}

// SetPath redirects the sink before its first dump. Fails with
// ErrSinkOpen once the file exists.
func (s *Sink) SetPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return ErrSinkOpen
	}
	s.path = path
	return nil
}

// Dump appends one machine's history as a contiguous block. The lock is
// held across the whole block so concurrent machines' dumps never
// interleave.
func (s *Sink) Dump(runID int, instanceID int64, dropped int, history []Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open()
	if dropped > 0 {
		s.write(fmt.Sprintf("%3d-%4d: (%d earlier transitions dropped)\n", runID, instanceID, dropped))
	}
	for _, t := range history {
		s.write(fmt.Sprintf("%3d-%4d: %s\n", runID, instanceID, t))
	}
	if err := s.f.Sync(); err != nil {
		panic(fmt.Errorf("vstate: sync diagnostic sink %s: %w", s.path, err))
	}
}

// open is called with mu held.
func (s *Sink) open() {
	if s.f != nil {
		return
	}
	if s.closed {
		panic(fmt.Errorf("vstate: dump to diagnostic sink %s: %w", s.path, ErrSinkClosed))
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(fmt.Errorf("vstate: open diagnostic sink %s: %w", s.path, err))
	}
	s.f = f
	s.logger.Info("diagnostic sink opened", "path", s.path, "run", RunID())
	s.write("START --------------------\n")
}

// write is called with mu held.
func (s *Sink) write(line string) {
	if _, err := s.f.WriteString(line); err != nil {
		panic(fmt.Errorf("vstate: write diagnostic sink %s: %w", s.path, err))
	}
}

// Close flushes and closes the sink file. Dumping after Close is fatal.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("close diagnostic sink %s: %w", s.path, err)
	}
	return nil
}

// sharedSink is what every machine dumps to unless built WithSink.
var sharedSink = NewSink(DefaultHistoryPath, nil)

// SetHistoryPath redirects the process-wide sink. Call it during startup,
// before the first violation dump opens the file.
func SetHistoryPath(path string) error {
	return sharedSink.SetPath(path)
}

var (
	runOnce sync.Once
	runID   int
)

// RunID is the random 0..999 id stamped on every dump line this process
// writes, so interleaved runs appending to one file stay separable.
func RunID() int {
	runOnce.Do(func() {
		runID = rand.IntN(1000)
	})
	return runID
}

var lastInstanceID atomic.Int64

// nextInstanceID hands out machine ids. Ids never recycle within a
// process.
func nextInstanceID() int64 {
	return lastInstanceID.Add(1)
}
