package compiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/stream"
	"github.com/goliatone/go-tplc/pkg/validate"
)

// ErrSessionUsed is returned when Run is called on a session that already ran.
var ErrSessionUsed = errors.New("compiler: session already run")

var errIncomplete = errors.New("compiler: optimised stream did not complete")

// SessionState tracks a session through its single run.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionFrontendRunning
	SessionSucceeded
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionFrontendRunning:
		return "frontend-running"
	case SessionSucceeded:
		return "succeeded"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result summarises a successful compilation.
type Result struct {
	Warnings []stream.Warning
	// Instructions counts what the front-end emitted.
	Instructions int
	// Optimized counts what reached the backend.
	Optimized int
	Duration  time.Duration
}

// Failure reports a compilation that did not succeed. Err keeps the
// underlying error for errors.As.
type Failure struct {
	Kind     diag.Kind
	Message  string
	Err      error
	Warnings []stream.Warning
}

func (f *Failure) Error() string {
	return fmt.Sprintf("compiler: %s failure: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

func newFailure(err error, warnings []stream.Warning) *Failure {
	return &Failure{
		Kind:     diag.KindOf(err),
		Message:  err.Error(),
		Err:      err,
		Warnings: warnings,
	}
}

// Session is one run of the pipeline. It is not reusable.
type Session[T any] struct {
	compiler  *Compiler[T]
	backend   Backend[T]
	state     SessionState
	raw       *stream.Stream[T]
	optimized *stream.Stream[T]
	validator *validate.Validator[T]
	probe     *probe[T]
}

// State reports the session lifecycle position.
func (s *Session[T]) State() SessionState {
	return s.state
}

// Run executes the front-end over source and reports the outcome.
func (s *Session[T]) Run(ctx context.Context, source string) (Result, error) {
	if s.state != SessionCreated {
		return Result{}, ErrSessionUsed
	}
	if ctx == nil {
		s.state = SessionFailed
		return Result{}, errors.New("compiler: context is required")
	}

	c := s.compiler
	logger := c.logger.With(zap.String("session", c.name))

	if err := ctx.Err(); err != nil {
		s.state = SessionFailed
		failure := newFailure(err, nil)
		logger.Info("compilation canceled", zap.String("kind", string(failure.Kind)))
		return Result{}, failure
	}

	s.build()

	started := time.Now()
	s.state = SessionFrontendRunning
	logger.Debug("compilation started",
		zap.Int("passes", len(c.passes)),
		zap.Bool("validate", s.validator != nil),
	)

	c.frontend.Compile(ctx, s.raw, source)

	if !s.raw.Closed() {
		panic(&stream.ProtocolViolation{
			Stream:    s.raw.Name(),
			Operation: "frontend return",
			State:     s.raw.State(),
		})
	}

	duration := time.Since(started)
	for _, w := range s.probe.warnings {
		logger.Warn(w.Message, zap.String("code", w.Code))
	}

	if err := s.outcome(); err != nil {
		s.state = SessionFailed
		failure := newFailure(err, s.probe.warnings)
		logger.Info("compilation failed",
			zap.String("kind", string(failure.Kind)),
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return Result{}, failure
	}

	s.state = SessionSucceeded
	result := Result{
		Warnings:     s.probe.warnings,
		Instructions: s.raw.Emitted(),
		Optimized:    s.probe.instructions,
		Duration:     duration,
	}
	logger.Debug("compilation finished",
		zap.Int("instructions", result.Instructions),
		zap.Int("optimized", result.Optimized),
		zap.Duration("duration", duration),
	)
	return result, nil
}

// build assembles raw stream → validator → passes → backend → probe. The
// validator registers first so it observes every instruction before any
// pass reacts to it.
func (s *Session[T]) build() {
	c := s.compiler
	s.raw = stream.New[T](stream.WithName(c.name))
	if c.classify != nil {
		s.validator = validate.Attach(s.raw, c.classify)
	}
	s.optimized = c.passes.Apply(s.raw)
	s.optimized.Register(s.backend)
	s.probe = &probe[T]{}
	s.optimized.Register(s.probe)
}

func (s *Session[T]) outcome() error {
	switch {
	case s.probe.err != nil:
		return s.probe.err
	case !s.probe.done:
		return errIncomplete
	}
	if err := s.backend.Err(); err != nil {
		var backendErr *diag.BackendError
		if errors.As(err, &backendErr) {
			return err
		}
		return &diag.BackendError{Message: "backend failed", Err: err}
	}
	return nil
}

// probe observes the terminal event of the optimised stream after the
// backend has.
type probe[T any] struct {
	instructions int
	warnings     []stream.Warning
	err          error
	done         bool
}

func (p *probe[T]) OnInstruction(T)            { p.instructions++ }
func (p *probe[T]) OnWarning(w stream.Warning) { p.warnings = append(p.warnings, w) }
func (p *probe[T]) OnError(err error)          { p.err = err }
func (p *probe[T]) OnDone()                    { p.done = true }
