package markup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/stream"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// element is an open tag awaiting its end tag.
type element struct {
	name   string
	offset int
	// tag is false when the element's own tags are never written.
	tag bool
	// unwrap names the variable that suppresses the tags when truthy.
	unwrap string
	loop   *command.LoopStart
	inner  []command.Command
	outer  []command.Command
	// skip discards the original content, replaced by a block attribute.
	skip      bool
	skipDepth int
}

// closeOuter schedules cmds after the end tag, inside anything scheduled
// earlier.
func (el *element) closeOuter(cmds ...command.Command) {
	el.outer = append(append([]command.Command{}, cmds...), el.outer...)
}

type compilation struct {
	ctx   context.Context
	f     *Frontend
	s     *stream.Stream[command.Command]
	src   string
	lines lineIndex
	seq   int
	stack []*element
}

func newCompilation(ctx context.Context, f *Frontend, s *stream.Stream[command.Command], src string) *compilation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &compilation{
		ctx:   ctx,
		f:     f,
		s:     s,
		src:   src,
		lines: newLineIndex(src),
	}
}

func (c *compilation) run() error {
	z := html.NewTokenizer(strings.NewReader(c.src))
	offset := 0
	for {
		if err := c.ctx.Err(); err != nil {
			return err
		}

		tt := z.Next()
		raw := string(z.Raw())
		start := offset
		offset += len(raw)

		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return c.finish()
			}
			return c.syntaxError(start, z.Err().Error())
		}

		var tok html.Token
		if tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken {
			tok = z.Token()
		}

		if top := c.top(); top != nil && top.skip {
			switch {
			case tt == html.StartTagToken && !voidElements[tok.Data]:
				top.skipDepth++
				continue
			case tt == html.EndTagToken && top.skipDepth > 0:
				top.skipDepth--
				continue
			case tt != html.EndTagToken:
				continue
			}
		}

		var err error
		switch tt {
		case html.TextToken:
			err = c.text(raw, start)
		case html.StartTagToken:
			err = c.startTag(tok, raw, start, false)
		case html.SelfClosingTagToken:
			err = c.startTag(tok, raw, start, true)
		case html.EndTagToken:
			err = c.endTag(tok, raw, start)
		case html.CommentToken:
			if strings.HasPrefix(raw, "<!--/*") && strings.HasSuffix(raw, "*/-->") {
				continue
			}
			err = c.emit(command.OutText{Text: raw})
		case html.DoctypeToken:
			err = c.emit(command.OutText{Text: raw})
		}
		if err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}
	}
}

func (c *compilation) finish() error {
	if top := c.top(); top != nil {
		return c.syntaxError(top.offset, fmt.Sprintf("unclosed element <%s>", top.name))
	}
	return nil
}

func (c *compilation) top() *element {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *compilation) text(raw string, offset int) error {
	if !hasInterpolation(raw) {
		return c.emit(command.OutText{Text: raw})
	}
	segments, serr := splitInterpolation(raw)
	if serr != nil {
		return c.syntaxError(offset+serr.offset, serr.message)
	}
	for _, seg := range segments {
		if !seg.expr {
			if err := c.emit(command.OutText{Text: seg.text}); err != nil {
				return err
			}
			continue
		}
		expr, err := c.parse(seg.text, offset+seg.offset)
		if err != nil {
			return err
		}
		if err := c.output(expr, ContextText, offset+seg.offset); err != nil {
			return err
		}
	}
	return nil
}

func (c *compilation) endTag(tok html.Token, raw string, offset int) error {
	top := c.top()
	if top == nil {
		return c.syntaxError(offset, fmt.Sprintf("unexpected end tag </%s>", tok.Data))
	}
	if top.name != tok.Data {
		return c.syntaxError(offset, fmt.Sprintf("mismatched end tag </%s>, expected </%s>", tok.Data, top.name))
	}
	c.stack = c.stack[:len(c.stack)-1]
	return c.close(top, raw)
}

func (c *compilation) close(el *element, endTag string) error {
	if err := c.emit(el.inner...); err != nil {
		return err
	}
	if el.tag && endTag != "" {
		err := c.tagged(el, func() error {
			return c.emit(command.OutText{Text: endTag})
		})
		if err != nil {
			return err
		}
	}
	return c.emit(el.outer...)
}

// tagged writes a tag, guarded by the element's unwrap variable when set.
func (c *compilation) tagged(el *element, write func() error) error {
	if el.unwrap == "" {
		return write()
	}
	if err := c.emit(command.ConditionalStart{Var: el.unwrap, Expected: false}); err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}
	return c.emit(command.ConditionalEnd{})
}

// output writes expr escaped for outCtx unless the expression overrides the
// context.
func (c *compilation) output(expr expression.Expression, defaultCtx string, offset int) error {
	outCtx, err := c.context(expr, defaultCtx, offset)
	if err != nil {
		return err
	}
	if expr.Root == nil {
		return c.syntaxError(offset, "expression has no value")
	}
	v := c.symbol("v")
	if err := c.emit(command.VarBindingStart{Name: v, Expr: expr.Root}); err != nil {
		return err
	}
	uriOptions, err := c.uriOptions(expr, offset)
	if err != nil {
		return err
	}
	if uriOptions == "" {
		if err := c.writeVar(v, outCtx); err != nil {
			return err
		}
		return c.emit(command.VarBindingEnd{})
	}

	u := c.symbol("u")
	call := expression.RuntimeCall{
		Name: URICall,
		Args: []expression.Node{expression.Identifier{Name: v}, expression.StringConst{Value: uriOptions}},
	}
	if err := c.emit(command.VarBindingStart{Name: u, Expr: call}); err != nil {
		return err
	}
	if err := c.writeVar(u, outCtx); err != nil {
		return err
	}
	return c.emit(command.VarBindingEnd{}, command.VarBindingEnd{})
}

// uriOptions encodes the URI rewrite options of expr, or returns "" when it
// has none.
func (c *compilation) uriOptions(expr expression.Expression, offset int) (string, error) {
	values := url.Values{}
	for _, name := range URIOptions {
		if _, ok := expr.Option(name); !ok {
			continue
		}
		value, ok := expr.StringOption(name)
		if !ok {
			return "", c.syntaxError(offset, fmt.Sprintf("%s option must be a string literal", name))
		}
		values.Set(name, value)
	}
	return values.Encode(), nil
}

func (c *compilation) writeVar(name, outCtx string) error {
	if outCtx == ContextUnsafe {
		return c.emit(command.OutVariable{Name: name})
	}
	x := c.symbol("x")
	call := expression.RuntimeCall{
		Name: XSSCall,
		Args: []expression.Node{expression.Identifier{Name: name}, expression.StringConst{Value: outCtx}},
	}
	return c.emit(
		command.VarBindingStart{Name: x, Expr: call},
		command.OutVariable{Name: x},
		command.VarBindingEnd{},
	)
}

var knownContexts = map[string]bool{
	ContextText:      true,
	ContextAttribute: true,
	ContextHTML:      true,
	ContextURI:       true,
	ContextUnsafe:    true,
}

// context resolves the output context and warns about options this
// front-end does not implement.
func (c *compilation) context(expr expression.Expression, defaultCtx string, offset int) (string, error) {
	for _, name := range expr.OptionNames() {
		if name == "context" || slices.Contains(URIOptions, name) {
			continue
		}
		if err := c.warn(stream.Warning{
			Message: fmt.Sprintf("option %q is not supported and was ignored", name),
			Code:    WarnUnknownOption,
		}); err != nil {
			return "", err
		}
	}
	if _, ok := expr.Option("context"); !ok {
		return defaultCtx, nil
	}
	value, ok := expr.StringOption("context")
	if !ok {
		return "", c.syntaxError(offset, "context option must be a string literal")
	}
	if !knownContexts[value] {
		return "", c.syntaxError(offset, fmt.Sprintf("unknown context %q", value))
	}
	return value, nil
}

func (c *compilation) parse(body string, offset int) (expression.Expression, error) {
	expr, err := expression.Parse(body)
	if err == nil {
		return expr, nil
	}
	var perr *expression.ParseError
	if errors.As(err, &perr) {
		line, col := c.lines.position(offset + 2 + perr.Offset)
		return expr, &diag.SyntaxError{Message: perr.Message, Line: line, Column: col, Err: err}
	}
	return expr, c.syntaxError(offset, err.Error())
}

func (c *compilation) symbol(kind string) string {
	c.seq++
	return fmt.Sprintf("%s%s%d", c.f.prefix, kind, c.seq)
}

func (c *compilation) emit(cmds ...command.Command) error {
	for _, cmd := range cmds {
		if c.s.Closed() {
			return errStopped
		}
		c.s.Emit(cmd)
	}
	if c.s.Closed() {
		return errStopped
	}
	return nil
}

func (c *compilation) warn(w stream.Warning) error {
	if c.s.Closed() {
		return errStopped
	}
	c.s.Warn(w)
	return nil
}

func (c *compilation) syntaxError(offset int, message string) error {
	line, col := c.lines.position(offset)
	return &diag.SyntaxError{Message: message, Line: line, Column: col}
}
