// Package passes provides the optimisation passes for the command
// vocabulary.
package passes

import (
	"strings"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/optimize"
)

// Pass names.
const (
	CoalesceText  = "coalesce-text"
	DropEmptyText = "drop-empty-text"
	DeadCode      = "dead-code"
)

// Default returns the chain used when no passes are configured.
func Default() optimize.Chain[command.Command] {
	return optimize.Chain[command.Command]{
		NewDeadCode(),
		NewDropEmptyText(),
		NewCoalesceText(),
	}
}

// DefaultNames lists the names of Default in order.
func DefaultNames() []string {
	return Default().Names()
}

// NewRegistry returns a registry holding every built-in pass.
func NewRegistry() *optimize.Registry[command.Command] {
	return optimize.NewRegistry(
		NewCoalesceText(),
		NewDropEmptyText(),
		NewDeadCode(),
	)
}

// NewCoalesceText merges adjacent OutText instructions into one.
func NewCoalesceText() optimize.Pass[command.Command] {
	return optimize.NewPass(CoalesceText, func() optimize.Rewriter[command.Command] {
		return &coalescer{}
	})
}

type coalescer struct {
	buf     strings.Builder
	pending bool
}

func (c *coalescer) Rewrite(inst command.Command, emit func(command.Command)) {
	if text, ok := inst.(command.OutText); ok {
		c.buf.WriteString(text.Text)
		c.pending = true
		return
	}
	c.Flush(emit)
	emit(inst)
}

func (c *coalescer) Flush(emit func(command.Command)) {
	if !c.pending {
		return
	}
	text := c.buf.String()
	c.buf.Reset()
	c.pending = false
	emit(command.OutText{Text: text})
}

// NewDropEmptyText removes OutText instructions with no content.
func NewDropEmptyText() optimize.Pass[command.Command] {
	return optimize.NewPass(DropEmptyText, func() optimize.Rewriter[command.Command] {
		return optimize.RewriteFunc[command.Command](func(inst command.Command, emit func(command.Command)) {
			if text, ok := inst.(command.OutText); ok && text.Text == "" {
				return
			}
			emit(inst)
		})
	})
}
