package stream

// dispatcher is the ordered fan-out list owned by a Stream. It never buffers,
// reorders or recovers: a panicking handler propagates to the writer.
type dispatcher[T any] struct {
	handlers []Handler[T]
}

func (d *dispatcher[T]) add(h Handler[T]) {
	d.handlers = append(d.handlers, h)
}

func (d *dispatcher[T]) len() int {
	return len(d.handlers)
}

// snapshot returns the handlers registered at the time of the call. Handlers
// added while an event is being delivered do not receive that event.
func (d *dispatcher[T]) snapshot() []Handler[T] {
	return d.handlers[:len(d.handlers):len(d.handlers)]
}

// dispatchInstruction delivers inst in order, stopping early when proceed
// reports false (the stream closed during delivery).
func (d *dispatcher[T]) dispatchInstruction(inst T, proceed func() bool) {
	for _, h := range d.snapshot() {
		if !proceed() {
			return
		}
		h.OnInstruction(inst)
	}
}

func (d *dispatcher[T]) dispatchWarning(w Warning, proceed func() bool) {
	for _, h := range d.snapshot() {
		if !proceed() {
			return
		}
		if wh, ok := h.(WarningHandler); ok {
			wh.OnWarning(w)
		}
	}
}

func (d *dispatcher[T]) dispatchError(err error) {
	for _, h := range d.snapshot() {
		h.OnError(err)
	}
}

func (d *dispatcher[T]) dispatchDone() {
	for _, h := range d.snapshot() {
		h.OnDone()
	}
}

func (d *dispatcher[T]) verify() error {
	for _, h := range d.snapshot() {
		v, ok := h.(Verifier)
		if !ok {
			continue
		}
		if err := v.Verify(); err != nil {
			return err
		}
	}
	return nil
}
