// Package command defines the instruction vocabulary exchanged between the
// markup front-end, the optimisation passes and the pongo2 backend.
//
// Regions are expressed as start/end pairs: a variable binding scopes a
// name, a conditional guards its body on a variable's truthiness, a loop
// repeats its body per list item, and a procedure declares a reusable block
// that is invoked with ProcedureCall.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-tplc/pkg/expression"
)

// Command is one instruction of the stream.
type Command interface {
	String() string
	command()
}

// OutText writes literal markup.
type OutText struct {
	Text string
}

// OutVariable writes the value of a bound variable.
type OutVariable struct {
	Name string
}

// VarBindingStart binds Name to Expr until the matching VarBindingEnd.
type VarBindingStart struct {
	Name string
	Expr expression.Node
}

type VarBindingEnd struct{}

// ConditionalStart guards its body on Truthy(Var) == Expected.
type ConditionalStart struct {
	Var      string
	Expected bool
}

type ConditionalEnd struct{}

// LoopStart iterates the list held in variable List, binding each element to
// Item.
type LoopStart struct {
	List string
	Item string
}

type LoopEnd struct{}

// ProcedureStart declares a named block with parameters.
type ProcedureStart struct {
	Name   string
	Params []string
}

type ProcedureEnd struct{}

// Argument passes the variable Var as parameter Name.
type Argument struct {
	Name string
	Var  string
}

// ProcedureCall invokes a declared procedure.
type ProcedureCall struct {
	Name string
	Args []Argument
}

// Include locates and renders another unit by path.
type Include struct {
	Path string
}

func (OutText) command()          {}
func (OutVariable) command()      {}
func (VarBindingStart) command()  {}
func (VarBindingEnd) command()    {}
func (ConditionalStart) command() {}
func (ConditionalEnd) command()   {}
func (LoopStart) command()        {}
func (LoopEnd) command()          {}
func (ProcedureStart) command()   {}
func (ProcedureEnd) command()     {}
func (ProcedureCall) command()    {}
func (Include) command()          {}

func (c OutText) String() string      { return "out.text " + strconv.Quote(c.Text) }
func (c OutVariable) String() string  { return "out.var " + c.Name }
func (VarBindingEnd) String() string  { return "bind.end" }
func (ConditionalEnd) String() string { return "if.end" }
func (LoopEnd) String() string        { return "list.end" }
func (ProcedureEnd) String() string   { return "proc.end" }
func (c Include) String() string      { return "include " + strconv.Quote(c.Path) }

func (c VarBindingStart) String() string {
	expr := "null"
	if c.Expr != nil {
		expr = c.Expr.String()
	}
	return fmt.Sprintf("bind.start %s = %s", c.Name, expr)
}

func (c ConditionalStart) String() string {
	if c.Expected {
		return "if.start " + c.Var
	}
	return "if.start !" + c.Var
}

func (c LoopStart) String() string {
	return fmt.Sprintf("list.start %s in %s", c.Item, c.List)
}

func (c ProcedureStart) String() string {
	return fmt.Sprintf("proc.start %s(%s)", c.Name, strings.Join(c.Params, ", "))
}

func (c ProcedureCall) String() string {
	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		args = append(args, arg.Name+"="+arg.Var)
	}
	return fmt.Sprintf("proc.call %s(%s)", c.Name, strings.Join(args, ", "))
}
