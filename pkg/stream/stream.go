package stream

// State is the lifecycle position of a Stream. Transitions are monotonic.
type State int

const (
	StateOpen State = iota
	StateClosedError
	StateClosedDone
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosedError:
		return "closed-error"
	case StateClosedDone:
		return "closed-done"
	default:
		return "unknown"
	}
}

// Option customises a Stream at construction.
type Option func(*config)

type config struct {
	name string
}

// WithName labels the stream for diagnostics.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}

// Stream is a single-producer, multi-consumer instruction channel. It is not
// safe for concurrent use; each compilation owns its own stream graph.
type Stream[T any] struct {
	name       string
	state      State
	err        error
	emitted    int
	dispatcher dispatcher[T]
}

// New constructs an Open stream with no handlers.
func New[T any](options ...Option) *Stream[T] {
	cfg := config{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return &Stream[T]{name: cfg.name}
}

// Name returns the diagnostic label.
func (s *Stream[T]) Name() string {
	return s.name
}

// State reports the lifecycle state.
func (s *Stream[T]) State() State {
	return s.state
}

// Closed reports whether a terminal event was signalled.
func (s *Stream[T]) Closed() bool {
	return s.state != StateOpen
}

// Err returns the error the stream closed with, or nil.
func (s *Stream[T]) Err() error {
	return s.err
}

// Emitted returns how many instructions were emitted.
func (s *Stream[T]) Emitted() int {
	return s.emitted
}

// Handlers returns the number of registered handlers.
func (s *Stream[T]) Handlers() int {
	return s.dispatcher.len()
}

// Register appends h to the dispatch list. Duplicates are invoked
// independently.
func (s *Stream[T]) Register(h Handler[T]) {
	s.ensureOpen("register")
	if h == nil {
		panic("stream: handler is nil")
	}
	s.dispatcher.add(h)
}

// Emit delivers inst to every handler in registration order. When a handler
// closes the stream during delivery, the remaining handlers do not receive
// inst: they observe the terminal event instead.
func (s *Stream[T]) Emit(inst T) {
	s.ensureOpen("emit")
	s.emitted++
	s.dispatcher.dispatchInstruction(inst, s.open)
}

// Warn delivers a non-terminal warning to handlers implementing
// WarningHandler.
func (s *Stream[T]) Warn(w Warning) {
	s.ensureOpen("warn")
	s.dispatcher.dispatchWarning(w, s.open)
}

// SignalError closes the stream with err and delivers OnError to every
// handler.
func (s *Stream[T]) SignalError(err error) {
	s.ensureOpen("signal error")
	if err == nil {
		err = ErrUnspecified
	}
	s.state = StateClosedError
	s.err = err
	s.dispatcher.dispatchError(err)
}

// SignalDone closes the stream successfully. Registered Verifiers run first;
// if one fails the stream closes with that error instead.
func (s *Stream[T]) SignalDone() {
	s.ensureOpen("signal done")
	if err := s.dispatcher.verify(); err != nil {
		if s.Closed() {
			return
		}
		s.SignalError(err)
		return
	}
	if s.Closed() {
		return
	}
	s.state = StateClosedDone
	s.dispatcher.dispatchDone()
}

func (s *Stream[T]) open() bool {
	return s.state == StateOpen
}

func (s *Stream[T]) ensureOpen(op string) {
	if s.state == StateOpen {
		return
	}
	panic(&ProtocolViolation{Stream: s.name, Operation: op, State: s.state})
}
