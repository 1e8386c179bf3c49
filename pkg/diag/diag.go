// Package diag holds the recoverable error taxonomy of a compilation: syntax
// errors raised by front-ends, structural validation failures, and backend
// translation failures. Stream misuse is not part of it; see
// stream.ProtocolViolation.
package diag

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed compilation.
type Kind string

const (
	KindNone       Kind = ""
	KindSyntax     Kind = "syntax"
	KindValidation Kind = "validation"
	KindBackend    Kind = "backend"
	KindCanceled   Kind = "canceled"
	KindUnknown    Kind = "unknown"
)

// SyntaxError reports source text the front-end could not turn into
// instructions. Line and Column are 1-based; zero means unknown.
type SyntaxError struct {
	Message string
	Line    int
	Column  int
	Err     error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return "syntax error: " + e.Message
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ValidationError reports an unmatched or mismatched compound region.
type ValidationError struct {
	Message string
	Region  string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// BackendError reports an instruction sequence the backend could not
// translate.
type BackendError struct {
	Message     string
	Instruction string
	Err         error
}

func (e *BackendError) Error() string {
	msg := "backend error: " + e.Message
	if e.Instruction != "" {
		msg += " (" + e.Instruction + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// KindOf classifies err by walking its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		syntaxErr     *SyntaxError
		validationErr *ValidationError
		backendErr    *BackendError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &syntaxErr):
		return KindSyntax
	case errors.As(err, &backendErr):
		return KindBackend
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}
