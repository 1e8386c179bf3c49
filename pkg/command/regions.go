package command

import (
	"strings"

	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/validate"
)

// Region names reported by Regions.
const (
	RegionBinding     = "bind"
	RegionConditional = "if"
	RegionLoop        = "list"
	RegionProcedure   = "proc"
)

// Regions classifies region delimiters for the structural validator.
func Regions(c Command) validate.Marker {
	switch c.(type) {
	case VarBindingStart:
		return validate.Marker{Kind: validate.Open, Region: RegionBinding}
	case VarBindingEnd:
		return validate.Marker{Kind: validate.Close, Region: RegionBinding}
	case ConditionalStart:
		return validate.Marker{Kind: validate.Open, Region: RegionConditional}
	case ConditionalEnd:
		return validate.Marker{Kind: validate.Close, Region: RegionConditional}
	case LoopStart:
		return validate.Marker{Kind: validate.Open, Region: RegionLoop}
	case LoopEnd:
		return validate.Marker{Kind: validate.Close, Region: RegionLoop}
	case ProcedureStart:
		return validate.Marker{Kind: validate.Open, Region: RegionProcedure}
	case ProcedureEnd:
		return validate.Marker{Kind: validate.Close, Region: RegionProcedure}
	default:
		return validate.Marker{}
	}
}

// Listing renders commands one per line, indenting region bodies.
func Listing(cmds []Command) string {
	var b strings.Builder
	depth := 0
	for _, c := range cmds {
		marker := Regions(c)
		if marker.Kind == validate.Close && depth > 0 {
			depth--
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(c.String())
		b.WriteByte('\n')
		if marker.Kind == validate.Open {
			depth++
		}
	}
	return b.String()
}

// References lists the variables c reads.
func References(c Command) []string {
	switch v := c.(type) {
	case OutVariable:
		return []string{v.Name}
	case VarBindingStart:
		return expression.Variables(v.Expr)
	case ConditionalStart:
		return []string{v.Var}
	case LoopStart:
		return []string{v.List}
	case ProcedureCall:
		refs := make([]string, 0, len(v.Args))
		for _, arg := range v.Args {
			refs = append(refs, arg.Var)
		}
		return refs
	default:
		return nil
	}
}
