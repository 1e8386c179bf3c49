// Package expression parses the `${…}` expression language embedded in
// markup sources and folds constant sub-trees.
//
// Supported grammar:
//   - literals: 'text', "text", 12, 1.5, true, false, null
//   - identifiers with dotted or bracketed access: `page.title`, `items[0]`
//   - comparisons: `==`, `!=`, `<`, `<=`, `>`, `>=`
//   - boolean composition: `!a`, `a && b`, `a || b`, parentheses
//   - trailing options: `title @ context='html', i18n`
package expression

import (
	"sort"
	"strconv"
	"strings"
)

// Node is an expression tree element.
type Node interface {
	String() string
	node()
}

type Identifier struct {
	Name string
}

type StringConst struct {
	Value string
}

type NumberConst struct {
	Value float64
	Raw   string
}

type BoolConst struct {
	Value bool
}

type NullConst struct{}

// PropertyAccess reads Property from Target. Bracket access with a constant
// key is normalised into the same node.
type PropertyAccess struct {
	Target   Node
	Property string
}

type BinaryOp struct {
	Op    Operator
	Left  Node
	Right Node
}

type UnaryOp struct {
	Op      Operator
	Operand Node
}

// RuntimeCall invokes a runtime helper. It is never produced by Parse; front
// ends build it to request escaping or formatting from the backend.
type RuntimeCall struct {
	Name string
	Args []Node
}

func (Identifier) node()     {}
func (StringConst) node()    {}
func (NumberConst) node()    {}
func (BoolConst) node()      {}
func (NullConst) node()      {}
func (PropertyAccess) node() {}
func (BinaryOp) node()       {}
func (UnaryOp) node()        {}
func (RuntimeCall) node()    {}

func (n Identifier) String() string  { return n.Name }
func (n StringConst) String() string { return strconv.Quote(n.Value) }
func (n BoolConst) String() string   { return strconv.FormatBool(n.Value) }
func (NullConst) String() string     { return "null" }

func (n NumberConst) String() string {
	if n.Raw != "" {
		return n.Raw
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n PropertyAccess) String() string {
	return n.Target.String() + "." + n.Property
}

func (n BinaryOp) String() string {
	return "(" + n.Left.String() + " " + string(n.Op) + " " + n.Right.String() + ")"
}

func (n UnaryOp) String() string {
	return string(n.Op) + n.Operand.String()
}

func (n RuntimeCall) String() string {
	args := make([]string, 0, len(n.Args))
	for _, arg := range n.Args {
		args = append(args, arg.String())
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// Operator is the textual form of a unary or binary operator.
type Operator string

const (
	OpOr  Operator = "||"
	OpAnd Operator = "&&"
	OpNot Operator = "!"
	OpEq  Operator = "=="
	OpNeq Operator = "!="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

// Expression is a parsed `${…}` body: the root node plus its options.
// Options without a value hold BoolConst{Value: true}.
type Expression struct {
	Root    Node
	Options map[string]Node
	Raw     string
}

// Option returns the named option node.
func (e Expression) Option(name string) (Node, bool) {
	if e.Options == nil {
		return nil, false
	}
	n, ok := e.Options[name]
	return n, ok
}

// StringOption returns the named option when it is a string literal.
func (e Expression) StringOption(name string) (string, bool) {
	n, ok := e.Option(name)
	if !ok {
		return "", false
	}
	s, ok := n.(StringConst)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// OptionNames lists the option keys in sorted order.
func (e Expression) OptionNames() []string {
	names := make([]string, 0, len(e.Options))
	for name := range e.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithoutOption returns a copy of e with name removed.
func (e Expression) WithoutOption(name string) Expression {
	if _, ok := e.Options[name]; !ok {
		return e
	}
	out := e
	out.Options = make(map[string]Node, len(e.Options)-1)
	for k, v := range e.Options {
		if k == name {
			continue
		}
		out.Options[k] = v
	}
	return out
}

func (e Expression) String() string {
	var b strings.Builder
	if e.Root != nil {
		b.WriteString(e.Root.String())
	}
	names := e.OptionNames()
	if len(names) == 0 {
		return b.String()
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString("@ ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		if v, ok := e.Options[name].(BoolConst); ok && v.Value {
			continue
		}
		b.WriteString("=")
		b.WriteString(e.Options[name].String())
	}
	return b.String()
}

// Variables lists the identifiers n reads, in order of first appearance.
// Property access contributes only its base identifier.
func Variables(n Node) []string {
	var names []string
	seen := map[string]bool{}
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Identifier:
			if !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		case PropertyAccess:
			walk(v.Target)
		case BinaryOp:
			walk(v.Left)
			walk(v.Right)
		case UnaryOp:
			walk(v.Operand)
		case RuntimeCall:
			for _, arg := range v.Args {
				walk(arg)
			}
		}
	}
	walk(n)
	return names
}
