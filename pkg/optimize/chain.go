package optimize

import (
	"github.com/goliatone/go-tplc/pkg/stream"
)

// Chain is an ordered list of passes applied left to right.
type Chain[T any] []Pass[T]

// Compose flattens chains into one. Grouping never changes the result, only
// the left-to-right order of the passes does.
func Compose[T any](chains ...Chain[T]) Chain[T] {
	size := 0
	for _, c := range chains {
		size += len(c)
	}
	out := make(Chain[T], 0, size)
	for _, c := range chains {
		for _, p := range c {
			if p == nil {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// Apply folds the chain over upstream (pass₁ wraps upstream, pass₂ wraps
// pass₁, …) and returns the most downstream stream. An empty chain returns
// upstream itself.
func (c Chain[T]) Apply(upstream *stream.Stream[T]) *stream.Stream[T] {
	current := upstream
	for _, p := range c {
		if p == nil {
			continue
		}
		current = Attach(current, p)
	}
	return current
}

// Names lists the pass names in order.
func (c Chain[T]) Names() []string {
	names := make([]string, 0, len(c))
	for _, p := range c {
		if p == nil {
			continue
		}
		names = append(names, p.Name())
	}
	return names
}
