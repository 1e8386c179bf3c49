package pongo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-tplc/pkg/expression"
)

const (
	runtimeXSS = "xss"
	runtimeURI = "uri"
)

// reserved holds pongo2 keywords plus the nil literal.
var reserved = map[string]bool{
	"in": true, "and": true, "or": true, "not": true,
	"true": true, "false": true, "as": true, "export": true, "nil": true,
}

var operators = map[expression.Operator]string{
	expression.OpOr:  "or",
	expression.OpAnd: "and",
	expression.OpEq:  "==",
	expression.OpNeq: "!=",
	expression.OpLt:  "<",
	expression.OpLte: "<=",
	expression.OpGt:  ">",
	expression.OpGte: ">=",
}

// translate renders an expression tree as a pongo2 expression.
func translate(n expression.Node) (string, error) {
	switch v := n.(type) {
	case nil, expression.NullConst:
		return "nil", nil
	case expression.Identifier, expression.PropertyAccess:
		return variablePath(v)
	case expression.StringConst:
		return quote(v.Value)
	case expression.NumberConst:
		return number(v.Value), nil
	case expression.BoolConst:
		return strconv.FormatBool(v.Value), nil
	case expression.BinaryOp:
		op, ok := operators[v.Op]
		if !ok {
			return "", fmt.Errorf("unsupported operator %q", v.Op)
		}
		left, err := translate(v.Left)
		if err != nil {
			return "", err
		}
		right, err := translate(v.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + op + " " + right + ")", nil
	case expression.UnaryOp:
		if v.Op != expression.OpNot {
			return "", fmt.Errorf("unsupported operator %q", v.Op)
		}
		operand, err := translate(v.Operand)
		if err != nil {
			return "", err
		}
		return "(not " + operand + ")", nil
	case expression.RuntimeCall:
		return runtimeCall(v)
	default:
		return "", fmt.Errorf("unsupported expression %T", n)
	}
}

var runtimeFilters = map[string]string{
	runtimeXSS: XSSFilter,
	runtimeURI: URIFilter,
}

// runtimeCall maps a runtime helper onto its filter. Both helpers take a
// variable and a string literal parameter.
func runtimeCall(call expression.RuntimeCall) (string, error) {
	filter, ok := runtimeFilters[call.Name]
	if !ok {
		return "", fmt.Errorf("unsupported runtime call %q", call.Name)
	}
	if len(call.Args) != 2 {
		return "", fmt.Errorf("%s expects 2 arguments, got %d", call.Name, len(call.Args))
	}
	target, err := variablePath(call.Args[0])
	if err != nil {
		return "", err
	}
	arg, ok := call.Args[1].(expression.StringConst)
	if !ok {
		return "", fmt.Errorf("%s parameter must be a string literal", call.Name)
	}
	switch call.Name {
	case runtimeXSS:
		if _, err := Escape("", arg.Value); err != nil {
			return "", err
		}
	case runtimeURI:
		if _, err := ParseURIOptions(arg.Value); err != nil {
			return "", err
		}
	}
	param, err := quote(arg.Value)
	if err != nil {
		return "", err
	}
	return target + "|" + filter + ":" + param, nil
}

// variablePath renders identifiers and property chains. pongo2 only accepts
// filters and dotted access on plain variable paths.
func variablePath(n expression.Node) (string, error) {
	switch v := n.(type) {
	case expression.Identifier:
		if err := checkIdentifier(v.Name); err != nil {
			return "", err
		}
		return v.Name, nil
	case expression.PropertyAccess:
		target, err := variablePath(v.Target)
		if err != nil {
			return "", err
		}
		if isIndex(v.Property) {
			return target + "." + v.Property, nil
		}
		if err := checkIdentifier(v.Property); err != nil {
			return "", err
		}
		return target + "." + v.Property, nil
	default:
		return "", fmt.Errorf("expected a variable, got %s", n)
	}
}

func checkIdentifier(name string) error {
	if name == "" {
		return errors.New("empty identifier")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("identifier %q is not a valid template name", name)
		}
	}
	if reserved[name] {
		return fmt.Errorf("identifier %q is reserved", name)
	}
	return nil
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// quote renders a pongo2 string literal. The pongo2 lexer only knows the \"
// and \\ escapes and rejects raw newlines.
func quote(s string) (string, error) {
	if strings.ContainsAny(s, "\r\n") {
		return "", fmt.Errorf("string %q spans lines", s)
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`, nil
}

func number(f float64) string {
	var out string
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		out = strconv.FormatInt(int64(f), 10)
	} else {
		out = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if f < 0 {
		return "(" + out + ")"
	}
	return out
}
