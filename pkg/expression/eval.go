package expression

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Resolver supplies identifier values during evaluation.
type Resolver func(name string) (any, bool)

var errNotConstant = errors.New("expression: not constant")

// Constant folds n when it does not depend on any identifier. Values are
// string, float64, bool or nil. Short-circuiting operators fold when the left
// operand decides the outcome.
func Constant(n Node) (any, bool) {
	value, err := Eval(n, nil)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Eval computes n. Identifiers are looked up through resolve; a nil resolver
// makes every identifier non-constant. Property access walks maps and
// slices.
func Eval(n Node, resolve Resolver) (any, error) {
	switch v := n.(type) {
	case nil:
		return nil, nil
	case StringConst:
		return v.Value, nil
	case NumberConst:
		return v.Value, nil
	case BoolConst:
		return v.Value, nil
	case NullConst:
		return nil, nil
	case Identifier:
		if resolve == nil {
			return nil, errNotConstant
		}
		value, _ := resolve(v.Name)
		return value, nil
	case PropertyAccess:
		target, err := Eval(v.Target, resolve)
		if err != nil {
			return nil, err
		}
		return property(target, v.Property), nil
	case UnaryOp:
		operand, err := Eval(v.Operand, resolve)
		if err != nil {
			return nil, err
		}
		if v.Op != OpNot {
			return nil, fmt.Errorf("expression: unsupported unary operator %q", v.Op)
		}
		return !Truthy(operand), nil
	case BinaryOp:
		return evalBinary(v, resolve)
	case RuntimeCall:
		return nil, errNotConstant
	default:
		return nil, fmt.Errorf("expression: unsupported node %T", n)
	}
}

func evalBinary(n BinaryOp, resolve Resolver) (any, error) {
	left, err := Eval(n.Left, resolve)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpAnd:
		if !Truthy(left) {
			return left, nil
		}
		return Eval(n.Right, resolve)
	case OpOr:
		if Truthy(left) {
			return left, nil
		}
		return Eval(n.Right, resolve)
	}

	right, err := Eval(n.Right, resolve)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compare(left, right)
		if !ok {
			return nil, fmt.Errorf("expression: cannot compare %T and %T", left, right)
		}
		switch n.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return nil, fmt.Errorf("expression: unsupported binary operator %q", n.Op)
	}
}

// Truthy applies the template truthiness rules: nil, false, zero, the empty
// string and empty collections are false.
func Truthy(value any) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case float32:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, ok := toNumber(left); ok {
		if r, ok := toNumber(right); ok {
			return l == r
		}
		return false
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	}
	return reflect.DeepEqual(left, right)
}

func compare(left, right any) (int, bool) {
	if l, ok := toNumber(left); ok {
		r, ok := toNumber(right)
		if !ok {
			return 0, false
		}
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		default:
			return 0, true
		}
	}
	l, lok := left.(string)
	r, rok := right.(string)
	if !lok || !rok {
		return 0, false
	}
	switch {
	case l < r:
		return -1, true
	case l > r:
		return 1, true
	default:
		return 0, true
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func property(target any, name string) any {
	switch typed := target.(type) {
	case nil:
		return nil
	case map[string]any:
		return typed[name]
	case map[string]string:
		if v, ok := typed[name]; ok {
			return v
		}
		return nil
	case []any:
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= len(typed) {
			return nil
		}
		return typed[idx]
	}
	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil
		}
		return rv.Index(idx).Interface()
	default:
		return nil
	}
}
