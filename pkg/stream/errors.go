package stream

import (
	"errors"
	"fmt"
)

// ErrUnspecified replaces a nil error passed to SignalError.
var ErrUnspecified = errors.New("stream: unspecified error")

// ProtocolViolation reports an operation attempted on a closed stream. It is a
// defect in the caller, never an expected runtime condition, and is raised
// with panic.
type ProtocolViolation struct {
	Stream    string
	Operation string
	State     State
}

func (p *ProtocolViolation) Error() string {
	name := p.Stream
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("stream: protocol violation: %s on %s stream %q", p.Operation, p.State, name)
}

// IsProtocolViolation reports whether a recovered panic value (or an error
// chain) carries a *ProtocolViolation.
func IsProtocolViolation(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}
