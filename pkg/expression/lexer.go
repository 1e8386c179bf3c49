package expression

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
	tokenComma
	tokenAt
	tokenAssign
)

type token struct {
	kind tokenKind
	raw  string
	pos  int
}

// ParseError reports a malformed expression. Offset is the byte offset into
// the expression text.
type ParseError struct {
	Message string
	Offset  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expression: %s at offset %d", e.Message, e.Offset)
}

func errorAt(pos int, format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Offset: pos}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == ':'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	peek := func(offset int) byte {
		if i+offset >= len(input) {
			return 0
		}
		return input[i+offset]
	}
	single := func(kind tokenKind, raw string) {
		tokens = append(tokens, token{kind: kind, raw: raw, pos: i})
		i += len(raw)
	}

	for i < len(input) {
		ch := input[i]
		if isSpace(ch) {
			i++
			continue
		}

		switch ch {
		case '(':
			single(tokenLParen, "(")
		case ')':
			single(tokenRParen, ")")
		case '[':
			single(tokenLBracket, "[")
		case ']':
			single(tokenRBracket, "]")
		case '.':
			single(tokenDot, ".")
		case ',':
			single(tokenComma, ",")
		case '@':
			single(tokenAt, "@")
		case '!':
			if peek(1) == '=' {
				single(tokenNeq, "!=")
			} else {
				single(tokenNot, "!")
			}
		case '=':
			if peek(1) == '=' {
				single(tokenEq, "==")
			} else {
				single(tokenAssign, "=")
			}
		case '<':
			if peek(1) == '=' {
				single(tokenLte, "<=")
			} else {
				single(tokenLt, "<")
			}
		case '>':
			if peek(1) == '=' {
				single(tokenGte, ">=")
			} else {
				single(tokenGt, ">")
			}
		case '&':
			if peek(1) != '&' {
				return nil, errorAt(i, "unexpected '&'; use '&&'")
			}
			single(tokenAnd, "&&")
		case '|':
			if peek(1) != '|' {
				return nil, errorAt(i, "unexpected '|'; use '||'")
			}
			single(tokenOr, "||")
		case '"', '\'':
			tok, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		default:
			switch {
			case isDigit(ch) || (ch == '-' && isDigit(peek(1)) && expectsOperand(tokens)):
				start := i
				i++
				for i < len(input) && (isDigit(input[i]) || (input[i] == '.' && i+1 < len(input) && isDigit(input[i+1]))) {
					i++
				}
				tokens = append(tokens, token{kind: tokenNumber, raw: input[start:i], pos: start})
			case isIdentStart(ch):
				start := i
				for i < len(input) && isIdentPart(input[i]) {
					i++
				}
				raw := input[start:i]
				switch raw {
				case "true", "false":
					tokens = append(tokens, token{kind: tokenBool, raw: raw, pos: start})
				case "null":
					tokens = append(tokens, token{kind: tokenNull, raw: raw, pos: start})
				default:
					tokens = append(tokens, token{kind: tokenIdentifier, raw: raw, pos: start})
				}
			default:
				return nil, errorAt(i, "unexpected character %q", ch)
			}
		}
	}
	return tokens, nil
}

// expectsOperand reports whether a '-' at the current position starts a
// negative number rather than following a value.
func expectsOperand(tokens []token) bool {
	if len(tokens) == 0 {
		return true
	}
	switch tokens[len(tokens)-1].kind {
	case tokenIdentifier, tokenString, tokenNumber, tokenBool, tokenNull, tokenRParen, tokenRBracket:
		return false
	default:
		return true
	}
}

func lexString(input string, start int) (token, int, error) {
	quote := input[start]
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == '\\':
			if i+1 >= len(input) {
				return token{}, 0, errorAt(i, "unterminated escape")
			}
			next := input[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'u':
				if i+6 > len(input) {
					return token{}, 0, errorAt(i, "invalid unicode escape")
				}
				code, err := strconv.ParseUint(input[i+2:i+6], 16, 32)
				if err != nil {
					return token{}, 0, errorAt(i, "invalid unicode escape")
				}
				b.WriteRune(rune(code))
				i += 6
				continue
			default:
				b.WriteByte(next)
			}
			i += 2
		case c == quote:
			return token{kind: tokenString, raw: b.String(), pos: start}, i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, errorAt(start, "unterminated string literal")
}
