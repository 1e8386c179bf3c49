package validate_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/stream"
	"github.com/goliatone/go-tplc/pkg/validate"
)

// token instructions: "(name" opens, ")name" closes, anything else is inert.
func classify(inst string) validate.Marker {
	if len(inst) > 1 {
		switch inst[0] {
		case '(':
			return validate.Marker{Kind: validate.Open, Region: inst[1:]}
		case ')':
			return validate.Marker{Kind: validate.Close, Region: inst[1:]}
		}
	}
	return validate.Marker{}
}

func setup() (*stream.Stream[string], *validate.Validator[string], *stream.Recorder[string]) {
	s := stream.New[string]()
	v := validate.Attach(s, classify)
	rec := stream.NewRecorder[string]()
	s.Register(rec)
	return s, v, rec
}

func TestValidator_BalancedStreamCompletes(t *testing.T) {
	s, v, rec := setup()
	for _, inst := range []string{"(if", "text", "(list", "text", ")list", ")if"} {
		s.Emit(inst)
	}
	s.SignalDone()

	if !rec.Done || rec.Err != nil {
		t.Fatalf("expected completion, got done=%v err=%v", rec.Done, rec.Err)
	}
	if !v.Balanced() || v.Depth() != 0 {
		t.Fatalf("expected balanced validator, depth %d", v.Depth())
	}
}

func TestValidator_UnclosedRegionFailsCompletion(t *testing.T) {
	s, v, rec := setup()
	s.Emit("(if")
	s.Emit("x")
	s.SignalDone()

	if rec.Done {
		t.Fatalf("unbalanced stream must not complete")
	}
	var verr *diag.ValidationError
	if !errors.As(rec.Err, &verr) {
		t.Fatalf("expected validation error, got %v", rec.Err)
	}
	if verr.Region != "if" {
		t.Fatalf("expected region if, got %q", verr.Region)
	}
	if v.Balanced() {
		t.Fatalf("validator should report unbalanced")
	}
	if s.State() != stream.StateClosedError {
		t.Fatalf("expected closed-error, got %s", s.State())
	}
}

func TestValidator_CloseWithoutOpenTerminatesEarly(t *testing.T) {
	s, _, rec := setup()
	s.Emit("a")
	s.Emit(")if")

	if !s.Closed() {
		t.Fatalf("validator should close the stream immediately")
	}
	if diff := cmp.Diff([]string{"a"}, rec.Instructions); diff != "" {
		t.Fatalf("downstream saw offending instruction (-want +got):\n%s", diff)
	}
	if diag.KindOf(rec.Err) != diag.KindValidation {
		t.Fatalf("expected validation kind, got %v", rec.Err)
	}
}

func TestValidator_MismatchedClose(t *testing.T) {
	s, v, rec := setup()
	s.Emit("(if")
	s.Emit("(list")
	s.Emit(")if")

	if !s.Closed() || rec.Err == nil {
		t.Fatalf("expected early termination on mismatched close")
	}
	if v.Err() != rec.Err {
		t.Fatalf("validator and handler disagree: %v vs %v", v.Err(), rec.Err)
	}
}

func TestValidator_UpstreamErrorIsRecorded(t *testing.T) {
	s, v, _ := setup()
	s.Emit("(if")
	s.SignalError(errors.New("bad"))

	if v.Err() == nil || v.Err().Error() != "bad" {
		t.Fatalf("expected upstream error recorded, got %v", v.Err())
	}
}
