package stream

// Recorder is a Handler that keeps everything it observes. It backs the
// orchestrator's terminal probe and most stream tests.
type Recorder[T any] struct {
	Instructions []T
	Warnings     []Warning
	Err          error
	Done         bool
	Terminals    int
}

// NewRecorder returns an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

func (r *Recorder[T]) OnInstruction(inst T) {
	r.Instructions = append(r.Instructions, inst)
}

func (r *Recorder[T]) OnWarning(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

func (r *Recorder[T]) OnError(err error) {
	r.Err = err
	r.Terminals++
}

func (r *Recorder[T]) OnDone() {
	r.Done = true
	r.Terminals++
}

// Closed reports whether a terminal event was observed.
func (r *Recorder[T]) Closed() bool {
	return r.Terminals > 0
}
