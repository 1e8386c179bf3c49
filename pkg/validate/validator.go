// Package validate checks structural invariants that span several
// instructions: every opened compound region must be closed, in order, before
// the stream completes.
//
// The Validator holds a back-reference to the stream it observes and closes it
// with a *diag.ValidationError as soon as it sees a violation. End-of-stream
// imbalance is caught through stream.Verifier, so an unbalanced stream never
// completes successfully.
package validate

import (
	"fmt"

	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/stream"
)

// MarkerKind tells the validator what an instruction does to the region stack.
type MarkerKind int

const (
	None MarkerKind = iota
	Open
	Close
)

// Marker is the validator's view of one instruction.
type Marker struct {
	Kind   MarkerKind
	Region string
}

// Classifier maps an instruction onto a Marker.
type Classifier[T any] func(inst T) Marker

// Validator is a stream.Handler that enforces balanced, properly nested
// regions.
type Validator[T any] struct {
	stream   *stream.Stream[T]
	classify Classifier[T]
	open     []string
	err      error
}

var (
	_ stream.Handler[int] = (*Validator[int])(nil)
	_ stream.Verifier     = (*Validator[int])(nil)
)

// Attach registers a new Validator on s. It must be called before the
// front-end starts emitting.
func Attach[T any](s *stream.Stream[T], classify Classifier[T]) *Validator[T] {
	if classify == nil {
		panic("validate: classifier is nil")
	}
	v := &Validator[T]{stream: s, classify: classify}
	s.Register(v)
	return v
}

// OnInstruction updates the region stack and terminates the stream on a
// close without a matching open.
func (v *Validator[T]) OnInstruction(inst T) {
	if v.err != nil {
		return
	}
	marker := v.classify(inst)
	switch marker.Kind {
	case Open:
		v.open = append(v.open, marker.Region)
	case Close:
		if len(v.open) == 0 {
			v.fail(&diag.ValidationError{
				Message: fmt.Sprintf("close of region %q without matching open", marker.Region),
				Region:  marker.Region,
			})
			return
		}
		top := v.open[len(v.open)-1]
		if top != marker.Region {
			v.fail(&diag.ValidationError{
				Message: fmt.Sprintf("close of region %q while %q is open", marker.Region, top),
				Region:  marker.Region,
			})
			return
		}
		v.open = v.open[:len(v.open)-1]
	}
}

func (v *Validator[T]) OnError(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *Validator[T]) OnDone() {}

// Verify reports regions left open when the stream is about to complete.
func (v *Validator[T]) Verify() error {
	if v.err != nil {
		return v.err
	}
	if len(v.open) == 0 {
		return nil
	}
	top := v.open[len(v.open)-1]
	v.err = &diag.ValidationError{
		Message: fmt.Sprintf("%d unclosed region(s), innermost %q", len(v.open), top),
		Region:  top,
	}
	return v.err
}

// Balanced reports whether every opened region has been closed.
func (v *Validator[T]) Balanced() bool {
	return len(v.open) == 0
}

// Depth returns the number of currently open regions.
func (v *Validator[T]) Depth() int {
	return len(v.open)
}

// Err returns the first violation or upstream error observed.
func (v *Validator[T]) Err() error {
	return v.err
}

func (v *Validator[T]) fail(err *diag.ValidationError) {
	v.err = err
	if v.stream.Closed() {
		return
	}
	v.stream.SignalError(err)
}
