package stream

// Handler consumes the events of a Stream. Exactly one of OnError or OnDone is
// delivered to a handler registered before the stream closed.
type Handler[T any] interface {
	OnInstruction(inst T)
	OnError(err error)
	OnDone()
}

// Warning is a non-terminal diagnostic travelling alongside instructions.
type Warning struct {
	Message string
	Code    string
}

// WarningHandler is implemented by handlers that want to observe warnings.
// Handlers that do not implement it never see them.
type WarningHandler interface {
	OnWarning(w Warning)
}

// Verifier is consulted by SignalDone before the stream transitions to
// ClosedDone. The first non-nil error turns the completion into an error
// close, so every handler observes OnError instead of OnDone.
type Verifier interface {
	Verify() error
}

// HandlerFuncs adapts plain functions to the Handler interface. Nil fields are
// ignored.
type HandlerFuncs[T any] struct {
	Instruction func(inst T)
	Error       func(err error)
	Done        func()
	Warning     func(w Warning)
}

// OnInstruction calls Instruction when set.
func (h HandlerFuncs[T]) OnInstruction(inst T) {
	if h.Instruction != nil {
		h.Instruction(inst)
	}
}

// OnError calls Error when set.
func (h HandlerFuncs[T]) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// OnDone calls Done when set.
func (h HandlerFuncs[T]) OnDone() {
	if h.Done != nil {
		h.Done()
	}
}

// OnWarning calls Warning when set.
func (h HandlerFuncs[T]) OnWarning(w Warning) {
	if h.Warning != nil {
		h.Warning(w)
	}
}
