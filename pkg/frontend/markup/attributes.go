package markup

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/stream"
)

const blockPrefix = "data-sly-"

// Block attribute names.
const (
	blockTest     = "test"
	blockList     = "list"
	blockText     = "text"
	blockUnwrap   = "unwrap"
	blockInclude  = "include"
	blockTemplate = "template"
	blockCall     = "call"
)

var knownBlocks = map[string]bool{
	blockTest:     true,
	blockList:     true,
	blockText:     true,
	blockUnwrap:   true,
	blockInclude:  true,
	blockTemplate: true,
	blockCall:     true,
}

// uriAttributes default to the uri context.
var uriAttributes = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"poster": true, "cite": true, "data": true, "srcset": true,
}

type block struct {
	name  string
	ident string
	value string
}

// sensitive reports attributes that cannot safely hold expressions.
func sensitive(key string) bool {
	return strings.HasPrefix(key, "on") || key == "style"
}

func (c *compilation) splitAttributes(attrs []html.Attribute, offset int) (map[string]block, []html.Attribute, error) {
	blocks := map[string]block{}
	var plain []html.Attribute
	for _, attr := range attrs {
		if !strings.HasPrefix(attr.Key, blockPrefix) {
			plain = append(plain, attr)
			continue
		}
		name, ident, _ := strings.Cut(attr.Key[len(blockPrefix):], ".")
		if !knownBlocks[name] {
			return nil, nil, c.syntaxError(offset, fmt.Sprintf("unsupported block attribute %q", attr.Key))
		}
		if _, dup := blocks[name]; dup {
			return nil, nil, c.syntaxError(offset, fmt.Sprintf("duplicate block attribute %q", blockPrefix+name))
		}
		blocks[name] = block{name: name, ident: ident, value: attr.Val}
	}
	return blocks, plain, nil
}

// blockExpression reads a block attribute value: a single `${…}` expression,
// a literal (treated as a string constant) or nothing.
func (c *compilation) blockExpression(b block, offset int) (expression.Expression, error) {
	value := strings.TrimSpace(b.value)
	if value == "" {
		return expression.Expression{}, nil
	}
	if !hasInterpolation(value) {
		return expression.Expression{Root: expression.StringConst{Value: value}, Raw: value}, nil
	}
	segments, serr := splitInterpolation(value)
	if serr != nil {
		return expression.Expression{}, c.syntaxError(offset, fmt.Sprintf("%s%s: %s", blockPrefix, b.name, serr.message))
	}
	if len(segments) != 1 || !segments[0].expr {
		return expression.Expression{}, c.syntaxError(offset, fmt.Sprintf("%s%s must hold a single expression", blockPrefix, b.name))
	}
	expr, err := expression.Parse(segments[0].text)
	if err != nil {
		return expr, c.syntaxError(offset, fmt.Sprintf("%s%s: %v", blockPrefix, b.name, err))
	}
	return expr, nil
}

func (c *compilation) requireValue(b block, offset int) (expression.Expression, error) {
	expr, err := c.blockExpression(b, offset)
	if err != nil {
		return expr, err
	}
	if expr.Root == nil {
		return expr, c.syntaxError(offset, fmt.Sprintf("%s%s requires an expression", blockPrefix, b.name))
	}
	return expr, nil
}

func (c *compilation) startTag(tok html.Token, raw string, offset int, selfClosing bool) error {
	blocks, attrs, err := c.splitAttributes(tok.Attr, offset)
	if err != nil {
		return err
	}
	void := selfClosing || voidElements[tok.Data]
	el := &element{name: tok.Data, offset: offset, tag: true}

	if len(blocks) == 0 && tok.Data != "sly" && !interpolated(attrs) {
		if err := c.emit(command.OutText{Text: raw}); err != nil {
			return err
		}
		if !void {
			c.stack = append(c.stack, el)
		}
		return nil
	}

	if err := c.openBlocks(el, blocks, offset); err != nil {
		return err
	}

	if el.tag {
		err := c.tagged(el, func() error {
			return c.openTag(tok.Data, attrs, selfClosing, offset)
		})
		if err != nil {
			return err
		}
	}

	if err := c.contentBlocks(el, blocks, offset); err != nil {
		return err
	}

	if void {
		return c.close(el, "")
	}
	c.stack = append(c.stack, el)
	return nil
}

// openBlocks emits the region starts wrapping the element, outermost first:
// template, test, list, unwrap.
func (c *compilation) openBlocks(el *element, blocks map[string]block, offset int) error {
	if b, ok := blocks[blockTemplate]; ok {
		if b.ident == "" {
			return c.syntaxError(offset, "data-sly-template requires a name")
		}
		expr, err := c.blockExpression(b, offset)
		if err != nil {
			return err
		}
		if expr.Root != nil {
			return c.syntaxError(offset, "data-sly-template declares parameters as options only")
		}
		for _, name := range []string{blockTest, blockList, blockText, blockUnwrap, blockInclude, blockCall} {
			if _, ok := blocks[name]; !ok {
				continue
			}
			delete(blocks, name)
			if err := c.warn(stream.Warning{
				Message: fmt.Sprintf("%s%s is ignored on a template element", blockPrefix, name),
				Code:    WarnIgnoredAttribute,
			}); err != nil {
				return err
			}
		}
		el.tag = false
		el.closeOuter(command.ProcedureEnd{})
		return c.emit(command.ProcedureStart{Name: b.ident, Params: expr.OptionNames()})
	}

	if b, ok := blocks[blockTest]; ok {
		expr, err := c.requireValue(b, offset)
		if err != nil {
			return err
		}
		name := b.ident
		if name == "" {
			name = c.symbol("test")
		}
		el.closeOuter(command.ConditionalEnd{}, command.VarBindingEnd{})
		if err := c.emit(
			command.VarBindingStart{Name: name, Expr: expr.Root},
			command.ConditionalStart{Var: name, Expected: true},
		); err != nil {
			return err
		}
	}

	if b, ok := blocks[blockList]; ok {
		expr, err := c.requireValue(b, offset)
		if err != nil {
			return err
		}
		list := c.symbol("list")
		item := b.ident
		if item == "" {
			item = c.f.listItem
		}
		el.closeOuter(command.ConditionalEnd{}, command.VarBindingEnd{})
		if err := c.emit(
			command.VarBindingStart{Name: list, Expr: expr.Root},
			command.ConditionalStart{Var: list, Expected: true},
		); err != nil {
			return err
		}
		el.loop = &command.LoopStart{List: list, Item: item}
		el.inner = append(el.inner, command.LoopEnd{})
	}

	unwrap, hasUnwrap := blocks[blockUnwrap]
	if hasUnwrap || el.name == "sly" {
		var root expression.Node = expression.BoolConst{Value: true}
		if hasUnwrap {
			expr, err := c.blockExpression(unwrap, offset)
			if err != nil {
				return err
			}
			if expr.Root != nil {
				root = expr.Root
			}
		}
		el.unwrap = c.symbol("unwrap")
		el.closeOuter(command.VarBindingEnd{})
		return c.emit(command.VarBindingStart{Name: el.unwrap, Expr: root})
	}
	return nil
}

// contentBlocks emits what goes between the start tag and the content: the
// loop start and any content replacement.
func (c *compilation) contentBlocks(el *element, blocks map[string]block, offset int) error {
	if el.loop != nil {
		if err := c.emit(*el.loop); err != nil {
			return err
		}
	}

	replacing := 0
	for _, name := range []string{blockText, blockInclude, blockCall} {
		if _, ok := blocks[name]; ok {
			replacing++
		}
	}
	if replacing > 1 {
		return c.syntaxError(offset, "data-sly-text, data-sly-include and data-sly-call are mutually exclusive")
	}

	if b, ok := blocks[blockText]; ok {
		expr, err := c.requireValue(b, offset)
		if err != nil {
			return err
		}
		el.skip = true
		return c.output(expr, ContextText, offset)
	}

	if b, ok := blocks[blockInclude]; ok {
		expr, err := c.requireValue(b, offset)
		if err != nil {
			return err
		}
		value, ok := expression.Constant(expr.Root)
		path, isString := value.(string)
		if !ok || !isString || strings.TrimSpace(path) == "" {
			return c.syntaxError(offset, "data-sly-include requires a constant path")
		}
		el.skip = true
		return c.emit(command.Include{Path: path})
	}

	if b, ok := blocks[blockCall]; ok {
		expr, err := c.requireValue(b, offset)
		if err != nil {
			return err
		}
		ident, ok := expr.Root.(expression.Identifier)
		if !ok {
			return c.syntaxError(offset, "data-sly-call requires a template name")
		}
		el.skip = true
		call := command.ProcedureCall{Name: ident.Name}
		for _, name := range expr.OptionNames() {
			arg := c.symbol("arg")
			node, _ := expr.Option(name)
			if err := c.emit(command.VarBindingStart{Name: arg, Expr: node}); err != nil {
				return err
			}
			call.Args = append(call.Args, command.Argument{Name: name, Var: arg})
		}
		if err := c.emit(call); err != nil {
			return err
		}
		for range call.Args {
			if err := c.emit(command.VarBindingEnd{}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compilation) openTag(name string, attrs []html.Attribute, selfClosing bool, offset int) error {
	if err := c.emit(command.OutText{Text: "<" + name}); err != nil {
		return err
	}
	for _, attr := range attrs {
		if err := c.attribute(attr, offset); err != nil {
			return err
		}
	}
	end := ">"
	if selfClosing {
		end = "/>"
	}
	return c.emit(command.OutText{Text: end})
}

func (c *compilation) attribute(attr html.Attribute, offset int) error {
	if !hasInterpolation(attr.Val) {
		if attr.Val == "" {
			return c.emit(command.OutText{Text: " " + attr.Key})
		}
		return c.emit(command.OutText{Text: " " + attr.Key + `="` + html.EscapeString(attr.Val) + `"`})
	}
	if sensitive(attr.Key) {
		return c.warn(stream.Warning{
			Message: fmt.Sprintf("refusing to generate attribute %q: expressions are not allowed in event handlers or styles", attr.Key),
			Code:    WarnSensitiveAttribute,
		})
	}

	segments, serr := splitInterpolation(attr.Val)
	if serr != nil {
		return c.syntaxError(offset, fmt.Sprintf("attribute %s: %s", attr.Key, serr.message))
	}
	attrCtx := ContextAttribute
	if uriAttributes[attr.Key] {
		attrCtx = ContextURI
	}

	if len(segments) == 1 && segments[0].expr {
		expr, err := c.attrExpression(attr.Key, segments[0].text, offset)
		if err != nil {
			return err
		}
		outCtx, err := c.context(expr, attrCtx, offset)
		if err != nil {
			return err
		}
		if expr.Root == nil {
			return c.syntaxError(offset, fmt.Sprintf("attribute %s: expression has no value", attr.Key))
		}
		// A falsy value removes the attribute.
		v := c.symbol("attr")
		if err := c.emit(
			command.VarBindingStart{Name: v, Expr: expr.Root},
			command.ConditionalStart{Var: v, Expected: true},
			command.OutText{Text: " " + attr.Key + `="`},
		); err != nil {
			return err
		}
		if err := c.writeVar(v, outCtx); err != nil {
			return err
		}
		return c.emit(
			command.OutText{Text: `"`},
			command.ConditionalEnd{},
			command.VarBindingEnd{},
		)
	}

	if err := c.emit(command.OutText{Text: " " + attr.Key + `="`}); err != nil {
		return err
	}
	for _, seg := range segments {
		if !seg.expr {
			if err := c.emit(command.OutText{Text: html.EscapeString(seg.text)}); err != nil {
				return err
			}
			continue
		}
		expr, err := c.attrExpression(attr.Key, seg.text, offset)
		if err != nil {
			return err
		}
		if err := c.output(expr, attrCtx, offset); err != nil {
			return err
		}
	}
	return c.emit(command.OutText{Text: `"`})
}

func (c *compilation) attrExpression(key, body string, offset int) (expression.Expression, error) {
	expr, err := expression.Parse(body)
	if err != nil {
		return expr, c.syntaxError(offset, fmt.Sprintf("attribute %s: %v", key, err))
	}
	return expr, nil
}

func interpolated(attrs []html.Attribute) bool {
	for _, attr := range attrs {
		if hasInterpolation(attr.Val) {
			return true
		}
	}
	return false
}
