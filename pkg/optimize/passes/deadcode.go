package passes

import (
	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/optimize"
	"github.com/goliatone/go-tplc/pkg/validate"
)

// NewDeadCode folds conditionals on constant-bound variables. A passing test
// loses its delimiters and a failing one loses its whole region. Constant
// bindings are held back until an instruction reads them or a new region
// opens; a binding nobody read is removed with its end.
func NewDeadCode() optimize.Pass[command.Command] {
	return optimize.NewPass(DeadCode, func() optimize.Rewriter[command.Command] {
		return &deadCode{}
	})
}

type frame struct {
	region string
	// name is the variable the region binds, if any.
	name     string
	constant bool
	value    any
	start    command.VarBindingStart
	// emitted is false while a constant binding start is held back.
	emitted bool
	// dropEnd marks a conditional whose start was folded away.
	dropEnd bool
	// barrier hides outer bindings from constant lookups (procedure bodies).
	barrier bool
}

type deadCode struct {
	frames []frame
	skip   int
}

func (d *deadCode) Rewrite(inst command.Command, emit func(command.Command)) {
	if d.skip > 0 {
		switch command.Regions(inst).Kind {
		case validate.Open:
			d.skip++
		case validate.Close:
			d.skip--
		}
		return
	}

	switch c := inst.(type) {
	case command.VarBindingStart:
		if value, ok := expression.Constant(c.Expr); ok {
			d.push(frame{region: command.RegionBinding, name: c.Name, constant: true, value: value, start: c})
			return
		}
		d.forward(inst, emit)
		d.push(frame{region: command.RegionBinding, name: c.Name, emitted: true})
	case command.ConditionalStart:
		if value, ok := d.lookup(c.Var); ok {
			if expression.Truthy(value) == c.Expected {
				d.push(frame{region: command.RegionConditional, emitted: true, dropEnd: true})
				return
			}
			d.skip = 1
			return
		}
		d.forward(inst, emit)
		d.push(frame{region: command.RegionConditional, emitted: true})
	case command.LoopStart:
		d.forward(inst, emit)
		d.push(frame{region: command.RegionLoop, name: c.Item, emitted: true})
	case command.ProcedureStart:
		d.forward(inst, emit)
		d.push(frame{region: command.RegionProcedure, emitted: true, barrier: true})
	case command.VarBindingEnd, command.ConditionalEnd, command.LoopEnd, command.ProcedureEnd:
		f, ok := d.pop()
		if ok && (f.dropEnd || (f.constant && !f.emitted)) {
			return
		}
		emit(inst)
	default:
		d.forward(inst, emit)
	}
}

// Flush releases bindings still held back when the stream ends.
func (d *deadCode) Flush(emit func(command.Command)) {
	d.release(len(d.frames)-1, emit)
}

// forward emits inst after the held bindings it depends on. Opening a region
// releases every held binding so later releases cannot land inside it.
func (d *deadCode) forward(inst command.Command, emit func(command.Command)) {
	if command.Regions(inst).Kind == validate.Open {
		d.release(len(d.frames)-1, emit)
		emit(inst)
		return
	}
	for _, name := range command.References(inst) {
		if i := d.binding(name); i >= 0 {
			d.release(i, emit)
		}
	}
	emit(inst)
}

// release emits every held binding at or below index upto, outermost first.
func (d *deadCode) release(upto int, emit func(command.Command)) {
	for i := 0; i <= upto && i < len(d.frames); i++ {
		if d.frames[i].emitted {
			continue
		}
		d.frames[i].emitted = true
		emit(d.frames[i].start)
	}
}

func (d *deadCode) push(f frame) {
	d.frames = append(d.frames, f)
}

func (d *deadCode) pop() (frame, bool) {
	if len(d.frames) == 0 {
		return frame{}, false
	}
	f := d.frames[len(d.frames)-1]
	d.frames = d.frames[:len(d.frames)-1]
	return f, true
}

// binding returns the index of the innermost frame binding name, or -1.
func (d *deadCode) binding(name string) int {
	for i := len(d.frames) - 1; i >= 0; i-- {
		if d.frames[i].name == name {
			return i
		}
	}
	return -1
}

// lookup resolves name to a constant value. Loop items and non-constant
// bindings shadow outer constants.
func (d *deadCode) lookup(name string) (any, bool) {
	for i := len(d.frames) - 1; i >= 0; i-- {
		f := d.frames[i]
		if f.name == name {
			return f.value, f.constant
		}
		if f.barrier {
			break
		}
	}
	return nil, false
}
