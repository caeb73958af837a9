// Package transition drives a pipeline through the NULL → READY → PAUSED →
// PLAYING lattice and resolves asynchronous transitions within bounded time.
package transition

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/failure"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/metrics"
)

// Hard ceilings per operation. Caller timeouts never exceed them.
const (
	PrerollCeiling = 20 * time.Second
	PlayCeiling    = 10 * time.Second
	PauseCeiling   = 10 * time.Second

	// DefaultPollInterval is the wait between two state queries.
	DefaultPollInterval = 100 * time.Millisecond
)

// Result is the resolved outcome of a transition request.
type Result int

const (
	Success Result = iota
	AsyncPending
	Failure
	// PartialPreroll means a live source cannot preroll (NO_PREROLL). The
	// pipeline is usable.
	PartialPreroll
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case AsyncPending:
		return "async-pending"
	case Failure:
		return "failure"
	case PartialPreroll:
		return "partial-preroll"
	default:
		return "unknown"
	}
}

// Usable reports whether a pipeline that reached this result may be kept.
func (r Result) Usable() bool {
	return r == Success || r == PartialPreroll
}

// Operation names a controller-level transition.
type Operation int

const (
	OpPreroll Operation = iota
	OpPlay
	OpPause
)

// String returns the operation name used in logs and metrics.
func (o Operation) String() string {
	switch o {
	case OpPreroll:
		return "preroll"
	case OpPlay:
		return "play"
	case OpPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Ceiling returns the hard upper bound for the operation's wait.
func (o Operation) Ceiling() time.Duration {
	switch o {
	case OpPreroll:
		return PrerollCeiling
	case OpPlay:
		return PlayCeiling
	case OpPause:
		return PauseCeiling
	default:
		return PauseCeiling
	}
}

// Target returns the state the operation moves the pipeline to.
func (o Operation) Target() engine.State {
	switch o {
	case OpPlay:
		return engine.StatePlaying
	default:
		return engine.StatePaused
	}
}

// Bound clamps a caller timeout to the operation's ceiling. Zero or
// negative timeouts mean "use the ceiling".
func (o Operation) Bound(timeout time.Duration) time.Duration {
	ceiling := o.Ceiling()
	if timeout <= 0 || timeout > ceiling {
		return ceiling
	}
	return timeout
}

// Engine issues transitions and polls them to completion.
type Engine struct {
	pollInterval time.Duration
}

// New returns an engine polling every pollInterval. Zero or negative
// values use DefaultPollInterval.
func New(pollInterval time.Duration) *Engine {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Engine{pollInterval: pollInterval}
}

// PollInterval returns the wait between two state queries.
func (e *Engine) PollInterval() time.Duration {
	return e.pollInterval
}

// Request issues the transition to target and maps the immediate answer.
func (e *Engine) Request(p engine.Pipeline, target engine.State) Result {
	ret := p.SetState(target)
	slog.Debug("transition: state requested",
		"pipeline", p.Name(),
		"target", target,
		"return", ret,
	)
	return mapReturn(ret)
}

// Await polls p until it settles in target, reports a failure, or timeout
// elapses on the monotonic clock.
//
// The loop never blocks inside the runtime: each iteration is a
// non-blocking state query followed by a sleep of one poll interval.
//
// Returns:
//   - (Success, nil) or (PartialPreroll, nil) once target is reached
//   - (Failure, ErrTransitionFailure) if the runtime reports a failure
//   - (Failure, ErrAsyncTimeout) when timeout elapses first
func (e *Engine) Await(p engine.Pipeline, target engine.State, timeout time.Duration) (Result, error) {
	start := time.Now()

	for {
		ret, current, pending := p.QueryState()

		switch ret {
		case engine.StateChangeFailure:
			return Failure, fmt.Errorf("%w: %s failed while moving to %s (current %s)",
				failure.ErrTransitionFailure, p.Name(), target, current)

		case engine.StateChangeNoPreroll:
			if current == target {
				return PartialPreroll, nil
			}

		case engine.StateChangeSuccess:
			if current == target {
				return Success, nil
			}
		}

		if time.Since(start) >= timeout {
			slog.Warn("transition: async state change timed out",
				"pipeline", p.Name(),
				"target", target,
				"current", current,
				"pending", pending,
				"timeout", timeout,
			)
			return Failure, fmt.Errorf("%w: %s stuck in %s waiting for %s after %s",
				failure.ErrAsyncTimeout, p.Name(), current, target, timeout)
		}

		time.Sleep(e.pollInterval)
	}
}

// Preroll forces READY, then requests PAUSED and waits for it.
//
// Only Success and PartialPreroll are usable builds. An asynchronous
// transition still pending after timeout resolves to Failure with
// ErrAsyncTimeout.
func (e *Engine) Preroll(p engine.Pipeline, timeout time.Duration) (Result, error) {
	start := time.Now()

	if res := e.Request(p, engine.StateReady); res == Failure {
		err := fmt.Errorf("%w: %s refused READY", failure.ErrTransitionFailure, p.Name())
		e.observe(OpPreroll, Failure, start)
		return Failure, err
	}

	res, err := e.resolve(p, OpPreroll, timeout)
	e.observe(OpPreroll, res, start)
	return res, err
}

// Transition moves p to the operation's target state and waits for it.
func (e *Engine) Transition(p engine.Pipeline, op Operation, timeout time.Duration) (Result, error) {
	start := time.Now()
	res, err := e.resolve(p, op, timeout)
	e.observe(op, res, start)
	return res, err
}

// ForceNull sets NULL synchronously. Used on every teardown path.
func (e *Engine) ForceNull(p engine.Pipeline) {
	if ret := p.SetState(engine.StateNull); ret == engine.StateChangeFailure {
		slog.Warn("transition: pipeline refused NULL", "pipeline", p.Name())
	}
}

func (e *Engine) resolve(p engine.Pipeline, op Operation, timeout time.Duration) (Result, error) {
	target := op.Target()

	switch res := e.Request(p, target); res {
	case Success, PartialPreroll:
		return res, nil
	case Failure:
		return Failure, fmt.Errorf("%w: %s refused %s", failure.ErrTransitionFailure, p.Name(), target)
	}

	return e.Await(p, target, op.Bound(timeout))
}

func (e *Engine) observe(op Operation, res Result, start time.Time) {
	elapsed := time.Since(start)
	metrics.ObserveTransition(op.String(), res.String(), elapsed)
	slog.Debug("transition: resolved",
		"operation", op,
		"result", res,
		"elapsed", elapsed,
	)
}

func mapReturn(ret engine.StateChangeReturn) Result {
	switch ret {
	case engine.StateChangeSuccess:
		return Success
	case engine.StateChangeAsync:
		return AsyncPending
	case engine.StateChangeNoPreroll:
		return PartialPreroll
	default:
		return Failure
	}
}
