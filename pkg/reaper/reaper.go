// Package reaper closes resources in the background so shutdown paths
// never block on a slow Close. Callers hand off anything implementing
// io.Closer and move on; the reaper polls its queue, runs each close in
// its own goroutine and reports the ones that drag.
package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrStopped = errors.New("reaper stopped")

// Config configures the reaper.
type Config struct {
	// PollInterval is how often the queue is checked for new work.
	PollInterval time.Duration
	// SlowThreshold is how long a Close may run before it is reported
	// as slow. The warning repeats every threshold until the close
	// finishes.
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		SlowThreshold: 500 * time.Millisecond,
	}
}

type item struct {
	name   string
	closer io.Closer
}

// Reaper drains a queue of closers on a background goroutine. Closes run
// concurrently with each other and with the poll loop, so one wedged
// resource never holds up the rest.
type Reaper struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	pending []item
	stopped bool

	inflight sync.WaitGroup

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	enqueued   atomic.Int64
	closed     atomic.Int64
	slowCloses atomic.Int64
	closeErrs  atomic.Int64
}

// New creates a reaper. Call Start to begin polling.
func New(config Config) *Reaper {
	if config.PollInterval == 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.SlowThreshold == 0 {
		config.SlowThreshold = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Reaper{
		config: config,
		logger: config.Logger.With("component", "reaper"),
		stopCh: make(chan struct{}),
	}
}

// Enqueue hands a resource to the reaper. The name only labels log lines.
// Fails with ErrStopped once Stop has been called.
func (r *Reaper) Enqueue(name string, closer io.Closer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	r.pending = append(r.pending, item{name: name, closer: closer})
	r.enqueued.Add(1)
	return nil
}

func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop shuts the poll loop down, closes everything still queued and waits
// for in-flight closes to finish. Safe to call more than once.
func (r *Reaper) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// Drain waits until everything enqueued so far has finished closing.
// Resources enqueued after Drain begins are not waited on.
func (r *Reaper) Drain(ctx context.Context) error {
	r.drainQueue()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueued is how many resources have been handed to the reaper.
func (r *Reaper) Enqueued() int64 { return r.enqueued.Load() }

// Closed is how many closes have completed, successfully or not.
func (r *Reaper) Closed() int64 { return r.closed.Load() }

// SlowCloses is how many closes overran the slow threshold.
func (r *Reaper) SlowCloses() int64 { return r.slowCloses.Load() }

// CloseErrors is how many closes returned an error.
func (r *Reaper) CloseErrors() int64 { return r.closeErrs.Load() }

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.drainQueue()
		case <-r.stopCh:
			r.drainQueue()
			r.inflight.Wait()
			return
		}
	}
}

func (r *Reaper) drainQueue() {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, it := range batch {
		r.inflight.Add(1)
		go r.close(it)
	}
}

func (r *Reaper) close(it item) {
	defer r.inflight.Done()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- it.closer.Close()
	}()

	slow := time.NewTicker(r.config.SlowThreshold)
	defer slow.Stop()

	warned := false
	for {
		select {
		case err := <-done:
			elapsed := time.Since(start)
			if err != nil {
				r.closeErrs.Add(1)
				r.logger.Error("resource close failed", "name", it.name, "elapsed", elapsed, "error", err)
			} else if warned {
				r.logger.Info("slow resource close finished", "name", it.name, "elapsed", elapsed)
			} else {
				r.logger.Debug("resource closed", "name", it.name, "elapsed", elapsed)
			}
			r.closed.Add(1)
			return
		case <-slow.C:
			if !warned {
				warned = true
				r.slowCloses.Add(1)
			}
			r.logger.Warn("resource close running slow", "name", it.name, "elapsed", time.Since(start))
		}
	}
}
