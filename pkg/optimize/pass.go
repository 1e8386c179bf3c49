package optimize

import (
	"github.com/goliatone/go-tplc/pkg/stream"
)

// Rewriter holds the per-session state of a pass. Rewrite may forward zero,
// one or more instructions through emit; Flush releases anything still
// buffered when the upstream completes.
type Rewriter[T any] interface {
	Rewrite(inst T, emit func(T))
	Flush(emit func(T))
}

// Pass names a rewrite rule and creates fresh rewriter state for each
// compilation.
type Pass[T any] interface {
	Name() string
	NewRewriter() Rewriter[T]
}

type funcPass[T any] struct {
	name    string
	factory func() Rewriter[T]
}

func (p funcPass[T]) Name() string { return p.name }

func (p funcPass[T]) NewRewriter() Rewriter[T] { return p.factory() }

// NewPass adapts a rewriter factory into a Pass.
func NewPass[T any](name string, factory func() Rewriter[T]) Pass[T] {
	if factory == nil {
		panic("optimize: rewriter factory is nil")
	}
	return funcPass[T]{name: name, factory: factory}
}

// RewriteFunc adapts a stateless per-instruction rule into a Rewriter.
type RewriteFunc[T any] func(inst T, emit func(T))

func (fn RewriteFunc[T]) Rewrite(inst T, emit func(T)) { fn(inst, emit) }

func (fn RewriteFunc[T]) Flush(func(T)) {}

// Transform is a pass bound to one upstream stream. It is a Handler of the
// upstream and the owner of the downstream stream returned by Output.
type Transform[T any] struct {
	name     string
	rewriter Rewriter[T]
	out      *stream.Stream[T]
}

var _ stream.Handler[int] = (*Transform[int])(nil)
var _ stream.WarningHandler = (*Transform[int])(nil)

// Attach wires pass onto upstream and returns the rewritten stream.
func Attach[T any](upstream *stream.Stream[T], pass Pass[T]) *stream.Stream[T] {
	return NewTransform(upstream, pass).Output()
}

// NewTransform registers a Transform for pass on upstream.
func NewTransform[T any](upstream *stream.Stream[T], pass Pass[T]) *Transform[T] {
	if pass == nil {
		panic("optimize: pass is nil")
	}
	t := &Transform[T]{
		name:     pass.Name(),
		rewriter: pass.NewRewriter(),
		out:      stream.New[T](stream.WithName(pass.Name())),
	}
	upstream.Register(t)
	return t
}

// Name returns the pass name.
func (t *Transform[T]) Name() string {
	return t.name
}

// Output returns the downstream stream.
func (t *Transform[T]) Output() *stream.Stream[T] {
	return t.out
}

func (t *Transform[T]) OnInstruction(inst T) {
	t.rewriter.Rewrite(inst, t.forward)
}

func (t *Transform[T]) OnWarning(w stream.Warning) {
	if t.out.Closed() {
		return
	}
	t.out.Warn(w)
}

// OnError propagates without flushing: nothing buffered may follow an error.
func (t *Transform[T]) OnError(err error) {
	if t.out.Closed() {
		return
	}
	t.out.SignalError(err)
}

func (t *Transform[T]) OnDone() {
	t.rewriter.Flush(t.forward)
	if t.out.Closed() {
		return
	}
	t.out.SignalDone()
}

// forward emits downstream unless a downstream observer already closed the
// output, in which case the pass is a sink.
func (t *Transform[T]) forward(inst T) {
	if t.out.Closed() {
		return
	}
	t.out.Emit(inst)
}
