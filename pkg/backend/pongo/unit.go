package pongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/flosch/pongo2/v6"
)

// Unit is a compiled template ready to execute.
type Unit struct {
	name   string
	source string
	tpl    *pongo2.Template
	engine *Engine
}

func (u *Unit) Name() string   { return u.name }
func (u *Unit) Source() string { return u.source }

// Render executes the unit and returns its output. data may be a map, a
// pongo2.Context or any JSON-serialisable value.
func (u *Unit) Render(ctx context.Context, data any) (string, error) {
	var buf bytes.Buffer
	if err := u.Execute(ctx, &buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute writes the unit output to w. pongo2 cannot be interrupted, so ctx
// is only checked before execution starts.
func (u *Unit) Execute(ctx context.Context, w io.Writer, data any) error {
	if u == nil || u.tpl == nil {
		return errors.New("pongo: unit is nil")
	}
	if ctx == nil {
		return errors.New("pongo: context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	viewContext, err := convertToContext(data)
	if err != nil {
		return fmt.Errorf("pongo: convert data: %w", err)
	}

	u.engine.mu.RLock()
	err = u.tpl.ExecuteWriter(viewContext, w)
	u.engine.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("pongo: execute %q: %w", u.name, err)
	}
	return nil
}
