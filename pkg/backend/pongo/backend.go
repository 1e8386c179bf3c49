package pongo

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/validate"
)

const includeSymbol = "_tplc_inc"

var _ compiler.Backend[command.Command] = (*Backend)(nil)

// Backend translates a command stream into pongo2 source and parses it into a
// Unit once the stream completes. Procedures become macros hoisted ahead of
// the body so they exist before any call executes. A Backend serves one
// stream.
type Backend struct {
	engine *Engine
	name   string

	body    *buffer
	current *buffer
	procs   []*buffer
	open    []string
	params  map[string][]string
	include int

	err    error
	closed bool
	source string
	unit   *Unit
}

type fragment struct {
	text string
	call *command.ProcedureCall
}

// buffer collects generated source. Calls stay symbolic until the stream
// completes so procedures may be declared after their first use.
type buffer struct {
	parts  []fragment
	parent *buffer
}

func (b *buffer) write(parts ...string) {
	for _, p := range parts {
		if n := len(b.parts); n > 0 && b.parts[n-1].call == nil {
			b.parts[n-1].text += p
			continue
		}
		b.parts = append(b.parts, fragment{text: p})
	}
}

func newBackend(engine *Engine, name string) *Backend {
	body := &buffer{}
	return &Backend{
		engine:  engine,
		name:    name,
		body:    body,
		current: body,
		params:  make(map[string][]string),
	}
}

// Name reports the unit name.
func (b *Backend) Name() string { return b.name }

// Err reports the first translation failure.
func (b *Backend) Err() error { return b.err }

// Unit returns the compiled unit, or nil when the stream did not complete or
// translation failed.
func (b *Backend) Unit() *Unit { return b.unit }

// Source returns the generated pongo2 source once the stream completed.
func (b *Backend) Source() string { return b.source }

// OnInstruction translates one command.
func (b *Backend) OnInstruction(c command.Command) {
	if b.closed || b.err != nil {
		return
	}
	if err := b.translate(c); err != nil {
		b.fail(c, err)
	}
}

// OnError discards the partial translation.
func (b *Backend) OnError(error) {
	b.closed = true
}

// OnDone assembles and parses the unit.
func (b *Backend) OnDone() {
	if b.closed || b.err != nil {
		b.closed = true
		return
	}
	b.closed = true
	if len(b.open) > 0 {
		b.fail(nil, fmt.Errorf("unclosed %s region", b.open[len(b.open)-1]))
		return
	}

	source, err := b.assemble()
	if err != nil {
		b.fail(nil, err)
		return
	}
	b.source = source

	unit, err := b.engine.Parse(b.name, source)
	if err != nil {
		b.err = &diag.BackendError{Message: "generated source does not parse", Err: err}
		return
	}
	b.unit = unit
}

func (b *Backend) fail(c command.Command, err error) {
	be := &diag.BackendError{Message: err.Error()}
	if c != nil {
		be.Instruction = c.String()
	}
	b.err = be
}

func (b *Backend) translate(c command.Command) error {
	if err := b.track(c); err != nil {
		return err
	}

	switch v := c.(type) {
	case command.OutText:
		b.current.write(escapeText(v.Text))
	case command.OutVariable:
		if err := checkIdentifier(v.Name); err != nil {
			return err
		}
		b.current.write("{{ ", v.Name, " }}")
	case command.VarBindingStart:
		if err := checkIdentifier(v.Name); err != nil {
			return err
		}
		expr, err := translate(v.Expr)
		if err != nil {
			return err
		}
		b.current.write("{% with ", v.Name, "=", expr, " %}")
	case command.VarBindingEnd:
		b.current.write("{% endwith %}")
	case command.ConditionalStart:
		if err := checkIdentifier(v.Var); err != nil {
			return err
		}
		if v.Expected {
			b.current.write("{% if ", v.Var, " %}")
		} else {
			b.current.write("{% if not ", v.Var, " %}")
		}
	case command.ConditionalEnd:
		b.current.write("{% endif %}")
	case command.LoopStart:
		if err := checkIdentifier(v.Item); err != nil {
			return err
		}
		if err := checkIdentifier(v.List); err != nil {
			return err
		}
		b.current.write("{% for ", v.Item, " in ", v.List, " %}")
	case command.LoopEnd:
		b.current.write("{% endfor %}")
	case command.ProcedureStart:
		return b.startProcedure(v)
	case command.ProcedureEnd:
		b.current.write("{% endmacro %}")
		b.current = b.current.parent
	case command.ProcedureCall:
		if err := checkIdentifier(v.Name); err != nil {
			return err
		}
		for _, arg := range v.Args {
			if err := checkIdentifier(arg.Var); err != nil {
				return err
			}
		}
		call := v
		b.current.parts = append(b.current.parts, fragment{call: &call})
	case command.Include:
		return b.includeUnit(v)
	default:
		return fmt.Errorf("unsupported instruction %T", c)
	}
	return nil
}

// track keeps region nesting consistent even when no validator runs ahead of
// the backend.
func (b *Backend) track(c command.Command) error {
	marker := command.Regions(c)
	switch marker.Kind {
	case validate.Open:
		b.open = append(b.open, marker.Region)
	case validate.Close:
		n := len(b.open)
		if n == 0 {
			return fmt.Errorf("%s end without start", marker.Region)
		}
		if b.open[n-1] != marker.Region {
			return fmt.Errorf("%s end closes %s region", marker.Region, b.open[n-1])
		}
		b.open = b.open[:n-1]
	}
	return nil
}

func (b *Backend) startProcedure(p command.ProcedureStart) error {
	if err := checkIdentifier(p.Name); err != nil {
		return err
	}
	if _, ok := b.params[p.Name]; ok {
		return fmt.Errorf("procedure %q declared twice", p.Name)
	}
	for _, param := range p.Params {
		if err := checkIdentifier(param); err != nil {
			return err
		}
	}
	b.params[p.Name] = p.Params

	proc := &buffer{parent: b.current}
	proc.write("{% macro ", p.Name, "(", strings.Join(p.Params, ", "), ") %}")
	b.procs = append(b.procs, proc)
	b.current = proc
	return nil
}

func (b *Backend) includeUnit(inc command.Include) error {
	target, err := b.resolve(inc.Path)
	if err != nil {
		return err
	}
	lit, err := quote(target)
	if err != nil {
		return err
	}
	b.include++
	symbol := includeSymbol + strconv.Itoa(b.include)
	// A variable path keeps the include lazy: it is resolved when the unit
	// executes instead of when it is parsed.
	b.current.write("{% with ", symbol, "=", lit, " %}{% include ", symbol, " %}{% endwith %}")
	return nil
}

func (b *Backend) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("include path is empty")
	}
	var target string
	if strings.HasPrefix(p, "/") {
		target = path.Clean(strings.TrimLeft(p, "/"))
	} else {
		target = path.Join(path.Dir(b.name), p)
	}
	if target == ".." || strings.HasPrefix(target, "../") {
		return "", fmt.Errorf("include %q escapes the template root", p)
	}
	return target, nil
}

func (b *Backend) assemble() (string, error) {
	var out strings.Builder
	out.WriteString("{% autoescape off %}")
	for _, proc := range b.procs {
		if err := b.render(&out, proc); err != nil {
			return "", err
		}
	}
	if err := b.render(&out, b.body); err != nil {
		return "", err
	}
	out.WriteString("{% endautoescape %}")
	return out.String(), nil
}

func (b *Backend) render(out *strings.Builder, buf *buffer) error {
	for _, part := range buf.parts {
		if part.call == nil {
			out.WriteString(part.text)
			continue
		}
		call, err := b.callSource(part.call)
		if err != nil {
			return err
		}
		out.WriteString(call)
	}
	return nil
}

// callSource orders arguments by the declared parameters. Missing arguments
// pass nil; arguments the procedure does not declare are dropped.
func (b *Backend) callSource(call *command.ProcedureCall) (string, error) {
	params, ok := b.params[call.Name]
	if !ok {
		return "", fmt.Errorf("call to unknown procedure %q", call.Name)
	}
	byName := make(map[string]string, len(call.Args))
	for _, arg := range call.Args {
		byName[arg.Name] = arg.Var
	}
	args := make([]string, len(params))
	for i, param := range params {
		if v, ok := byName[param]; ok {
			args[i] = v
		} else {
			args[i] = "nil"
		}
	}
	return "{{ " + call.Name + "(" + strings.Join(args, ", ") + ") }}", nil
}

// escapeText protects literal markup from the pongo2 lexer, which would
// otherwise read `{{`, `{%` and `{#` as template syntax. A trailing `{` is
// escaped too: generated tags follow text directly and would complete it.
func escapeText(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	var out strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] == '{' && i+1 == len(text) {
			out.WriteString("{% templatetag openbrace %}")
			continue
		}
		if text[i] == '{' {
			switch text[i+1] {
			case '{':
				out.WriteString("{% templatetag openvariable %}")
				i++
				continue
			case '%':
				out.WriteString("{% templatetag openblock %}")
				i++
				continue
			case '#':
				out.WriteString("{% templatetag opencomment %}")
				i++
				continue
			}
		}
		out.WriteByte(text[i])
	}
	return out.String()
}
