package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kokovox/kokovox/internal/config"
)

// State tracks the lifecycle of the shared model handle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Factory builds the underlying synthesizer. Construction may be slow
// (model weights, external process checks) and may fail transiently.
type Factory func() (Synthesizer, error)

// Engine owns the process-wide synthesis model handle. Initialization is
// lazy: the first request triggers it, bounded retries with backoff follow
// on failure, and a failed handle is re-attempted on the next request
// rather than staying failed forever. State stays readable while an
// initialization attempt is in flight so health checks never wait behind a
// slow model load.
type Engine struct {
	initMu sync.Mutex // serializes initialization attempts

	mu      sync.Mutex // guards the fields below
	state   State
	synth   Synthesizer
	lastErr error

	factory Factory
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func NewEngine(cfg config.SynthConfig, factory Factory, log *slog.Logger) *Engine {
	retries := cfg.InitRetries
	if retries < 1 {
		retries = 1
	}
	return &Engine{
		factory: factory,
		retries: retries,
		backoff: time.Duration(cfg.InitBackoffMS) * time.Millisecond,
		logger:  log.With(slog.String("component", "synth-engine")),
	}
}

// EnsureReady returns the ready synthesizer, initializing it if needed.
// On failure after all retries it returns an error wrapping ErrUnavailable.
func (e *Engine) EnsureReady(ctx context.Context) (Synthesizer, error) {
	if s, ok := e.current(); ok {
		return s, nil
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	// Another request may have finished initialization while we waited.
	if s, ok := e.current(); ok {
		return s, nil
	}

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		synth, err := e.factory()
		if err == nil {
			e.setReady(synth)
			e.logger.Info("synthesis model initialized", slog.Int("attempt", attempt))
			return synth, nil
		}
		lastErr = err
		e.logger.Warn("synthesis model initialization failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.retries),
			slog.String("error", err.Error()))
		if attempt < e.retries {
			select {
			case <-ctx.Done():
				e.setFailed(ctx.Err())
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(e.backoff):
			}
		}
	}

	e.setFailed(lastErr)
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (e *Engine) current() (Synthesizer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synth, e.state == StateReady
}

func (e *Engine) setReady(s Synthesizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateReady
	e.synth = s
	e.lastErr = nil
}

func (e *Engine) setFailed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateFailed
	e.lastErr = err
}

// State reports the current lifecycle state without triggering
// initialization; health checks rely on this being read-only.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ready reports whether the model handle is initialized.
func (e *Engine) Ready() bool { return e.State() == StateReady }

// LastError returns the most recent initialization error, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
