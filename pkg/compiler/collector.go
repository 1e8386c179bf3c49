package compiler

// Collector is a Backend that keeps the optimised instructions. It never
// fails.
type Collector[T any] struct {
	Instructions []T
	done         bool
}

var _ Backend[int] = (*Collector[int])(nil)

// Collect returns an empty Collector.
func Collect[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (c *Collector[T]) OnInstruction(inst T) {
	c.Instructions = append(c.Instructions, inst)
}

func (c *Collector[T]) OnError(error) {
	c.Instructions = nil
}

func (c *Collector[T]) OnDone() {
	c.done = true
}

// Complete reports whether the stream finished successfully.
func (c *Collector[T]) Complete() bool {
	return c.done
}

func (c *Collector[T]) Err() error {
	return nil
}
