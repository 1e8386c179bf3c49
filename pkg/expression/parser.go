package expression

import (
	"strconv"
	"strings"
)

// Parse reads an expression body (the text between `${` and `}`).
func Parse(raw string) (Expression, error) {
	expr := Expression{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return expr, errorAt(0, "empty expression")
	}

	tokens, err := tokenize(raw)
	if err != nil {
		return expr, err
	}

	p := &parser{tokens: tokens, end: len(raw)}
	if !p.check(tokenAt) {
		root, err := p.parseOr()
		if err != nil {
			return expr, err
		}
		expr.Root = root
	}

	if p.match(tokenAt) {
		options, err := p.parseOptions()
		if err != nil {
			return expr, err
		}
		expr.Options = options
	}

	if !p.done() {
		tok := p.tokens[p.pos]
		return expr, errorAt(tok.pos, "unexpected token %q", tok.raw)
	}
	return expr, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) Expression {
	expr, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return expr
}

type parser struct {
	tokens []token
	pos    int
	end    int
}

func (p *parser) parseOptions() (map[string]Node, error) {
	options := make(map[string]Node)
	for {
		name, ok := p.consume(tokenIdentifier)
		if !ok {
			return nil, p.expected("option name")
		}
		var value Node = BoolConst{Value: true}
		if p.match(tokenAssign) {
			v, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			value = v
		}
		options[name.raw] = value
		if !p.match(tokenComma) {
			return options, nil
		}
	}
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.match(tokenAnd) {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

var comparisonOps = map[tokenKind]Operator{
	tokenEq:  OpEq,
	tokenNeq: OpNeq,
	tokenLt:  OpLt,
	tokenLte: OpLte,
	tokenGt:  OpGt,
	tokenGte: OpGte,
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.done() {
		return left, nil
	}
	op, ok := comparisonOps[p.tokens[p.pos].kind]
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return BinaryOp{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.match(tokenNot) {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: OpNot, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.match(tokenDot):
			name, ok := p.consume(tokenIdentifier)
			if !ok {
				return nil, p.expected("property name")
			}
			node = PropertyAccess{Target: node, Property: name.raw}
		case p.match(tokenLBracket):
			key, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.match(tokenRBracket) {
				return nil, p.expected("']'")
			}
			prop, ok := propertyKey(key)
			if !ok {
				return nil, errorAt(p.prevPos(), "bracket access requires a string or integer literal")
			}
			node = PropertyAccess{Target: node, Property: prop}
		default:
			return node, nil
		}
	}
}

func propertyKey(n Node) (string, bool) {
	switch v := n.(type) {
	case StringConst:
		return v.Value, true
	case NumberConst:
		if v.Value != float64(int64(v.Value)) || v.Value < 0 {
			return "", false
		}
		return strconv.FormatInt(int64(v.Value), 10), true
	default:
		return "", false
	}
}

func (p *parser) parsePrimary() (Node, error) {
	if p.done() {
		return nil, errorAt(p.end, "unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	p.pos++
	switch tok.kind {
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokenRParen) {
			return nil, p.expected("')'")
		}
		return inner, nil
	case tokenIdentifier:
		return Identifier{Name: tok.raw}, nil
	case tokenString:
		return StringConst{Value: tok.raw}, nil
	case tokenNumber:
		value, err := strconv.ParseFloat(tok.raw, 64)
		if err != nil {
			return nil, errorAt(tok.pos, "invalid number %q", tok.raw)
		}
		return NumberConst{Value: value, Raw: tok.raw}, nil
	case tokenBool:
		return BoolConst{Value: tok.raw == "true"}, nil
	case tokenNull:
		return NullConst{}, nil
	default:
		return nil, errorAt(tok.pos, "unexpected token %q", tok.raw)
	}
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) check(kind tokenKind) bool {
	return !p.done() && p.tokens[p.pos].kind == kind
}

func (p *parser) match(kind tokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.pos++
	return true
}

func (p *parser) consume(kind tokenKind) (token, bool) {
	if !p.check(kind) {
		return token{}, false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *parser) prevPos() int {
	if p.pos == 0 {
		return 0
	}
	return p.tokens[p.pos-1].pos
}

func (p *parser) expected(what string) *ParseError {
	if p.done() {
		return errorAt(p.end, "expected %s, got end of expression", what)
	}
	tok := p.tokens[p.pos]
	return errorAt(tok.pos, "expected %s, got %q", what, tok.raw)
}
