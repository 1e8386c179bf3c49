package stream_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/stream"
)

func mustPanicProtocol(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatalf("%s: expected protocol violation panic", op)
		}
		if !stream.IsProtocolViolation(recovered) {
			t.Fatalf("%s: expected *stream.ProtocolViolation, got %#v", op, recovered)
		}
	}()
	fn()
}

func TestStream_LifecycleMonotonicAfterDone(t *testing.T) {
	s := stream.New[string](stream.WithName("raw"))
	s.SignalDone()

	if s.State() != stream.StateClosedDone {
		t.Fatalf("expected closed-done, got %s", s.State())
	}
	mustPanicProtocol(t, "emit", func() { s.Emit("x") })
	mustPanicProtocol(t, "signal error", func() { s.SignalError(errors.New("late")) })
	mustPanicProtocol(t, "signal done", func() { s.SignalDone() })
	mustPanicProtocol(t, "register", func() { s.Register(stream.NewRecorder[string]()) })
	mustPanicProtocol(t, "warn", func() { s.Warn(stream.Warning{Message: "late"}) })
	if s.State() != stream.StateClosedDone {
		t.Fatalf("state changed after violations: %s", s.State())
	}
}

func TestStream_LifecycleMonotonicAfterError(t *testing.T) {
	s := stream.New[string]()
	s.Emit("a")
	s.SignalError(errors.New("bad"))

	if s.State() != stream.StateClosedError {
		t.Fatalf("expected closed-error, got %s", s.State())
	}
	if s.Err() == nil || s.Err().Error() != "bad" {
		t.Fatalf("unexpected terminal error: %v", s.Err())
	}
	mustPanicProtocol(t, "emit", func() { s.Emit("x") })
	mustPanicProtocol(t, "signal error", func() { s.SignalError(errors.New("again")) })
	mustPanicProtocol(t, "signal done", func() { s.SignalDone() })
}

func TestStream_ExactlyOnceTerminalDelivery(t *testing.T) {
	for name, closeFn := range map[string]func(*stream.Stream[int]){
		"done":  func(s *stream.Stream[int]) { s.SignalDone() },
		"error": func(s *stream.Stream[int]) { s.SignalError(errors.New("boom")) },
	} {
		t.Run(name, func(t *testing.T) {
			s := stream.New[int]()
			first := stream.NewRecorder[int]()
			second := stream.NewRecorder[int]()
			s.Register(first)
			s.Register(second)
			s.Emit(1)
			closeFn(s)

			for idx, rec := range []*stream.Recorder[int]{first, second} {
				if rec.Terminals != 1 {
					t.Fatalf("handler %d: expected one terminal event, got %d", idx, rec.Terminals)
				}
				if rec.Done == (rec.Err != nil) {
					t.Fatalf("handler %d: expected exactly one of done/error, got done=%v err=%v", idx, rec.Done, rec.Err)
				}
			}
		})
	}
}

func TestStream_BroadcastFidelity(t *testing.T) {
	s := stream.New[string]()
	h1 := stream.NewRecorder[string]()
	h2 := stream.NewRecorder[string]()
	s.Register(h1)
	s.Register(h2)

	input := []string{"a", "b", "c", "b"}
	for _, inst := range input {
		s.Emit(inst)
	}
	s.SignalDone()

	if diff := cmp.Diff(input, h1.Instructions); diff != "" {
		t.Fatalf("h1 sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(h1.Instructions, h2.Instructions); diff != "" {
		t.Fatalf("h1/h2 sequences differ (-h1 +h2):\n%s", diff)
	}
}

func TestStream_DeliveryFollowsRegistrationOrder(t *testing.T) {
	s := stream.New[int]()
	var order []string
	for _, label := range []string{"first", "second", "third"} {
		label := label
		s.Register(stream.HandlerFuncs[int]{
			Instruction: func(int) { order = append(order, label) },
			Done:        func() { order = append(order, label+":done") },
		})
	}
	s.Emit(1)
	s.SignalDone()

	want := []string{"first", "second", "third", "first:done", "second:done", "third:done"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_NoRetroactiveDelivery(t *testing.T) {
	s := stream.New[string]()
	early := stream.NewRecorder[string]()
	s.Register(early)
	s.Emit("before")

	late := stream.NewRecorder[string]()
	s.Register(late)
	s.Emit("after")
	s.SignalDone()

	if diff := cmp.Diff([]string{"before", "after"}, early.Instructions); diff != "" {
		t.Fatalf("early handler mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"after"}, late.Instructions); diff != "" {
		t.Fatalf("late handler mismatch (-want +got):\n%s", diff)
	}
	if !late.Done {
		t.Fatalf("late handler should still observe completion")
	}
}

func TestStream_RegistrationDuringDispatchSkipsInFlightEvent(t *testing.T) {
	s := stream.New[string]()
	late := stream.NewRecorder[string]()
	registered := false
	s.Register(stream.HandlerFuncs[string]{
		Instruction: func(string) {
			if !registered {
				registered = true
				s.Register(late)
			}
		},
	})
	s.Emit("first")
	s.Emit("second")
	s.SignalDone()

	if diff := cmp.Diff([]string{"second"}, late.Instructions); diff != "" {
		t.Fatalf("late handler mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_DuplicateHandlersInvokedIndependently(t *testing.T) {
	s := stream.New[int]()
	rec := stream.NewRecorder[int]()
	s.Register(rec)
	s.Register(rec)
	s.Emit(7)
	s.SignalDone()

	if diff := cmp.Diff([]int{7, 7}, rec.Instructions); diff != "" {
		t.Fatalf("duplicate delivery mismatch (-want +got):\n%s", diff)
	}
	if rec.Terminals != 2 {
		t.Fatalf("expected one terminal per registration, got %d", rec.Terminals)
	}
}

func TestStream_CloseDuringDispatchStopsInstruction(t *testing.T) {
	s := stream.New[string]()
	s.Register(stream.HandlerFuncs[string]{
		Instruction: func(inst string) {
			if inst == "stop" {
				s.SignalError(errors.New("halted"))
			}
		},
	})
	downstream := stream.NewRecorder[string]()
	s.Register(downstream)

	s.Emit("go")
	s.Emit("stop")

	if diff := cmp.Diff([]string{"go"}, downstream.Instructions); diff != "" {
		t.Fatalf("downstream observed instruction after close (-want +got):\n%s", diff)
	}
	if downstream.Err == nil || downstream.Err.Error() != "halted" {
		t.Fatalf("expected halted error, got %v", downstream.Err)
	}
	if !s.Closed() {
		t.Fatalf("expected stream closed")
	}
}

type failingVerifier struct {
	stream.Recorder[int]
	err error
}

func (v *failingVerifier) Verify() error { return v.err }

func TestStream_VerifierTurnsDoneIntoError(t *testing.T) {
	s := stream.New[int]()
	verifier := &failingVerifier{err: errors.New("unbalanced")}
	observer := stream.NewRecorder[int]()
	s.Register(verifier)
	s.Register(observer)

	s.SignalDone()

	if s.State() != stream.StateClosedError {
		t.Fatalf("expected closed-error, got %s", s.State())
	}
	if observer.Done || observer.Err == nil || observer.Err.Error() != "unbalanced" {
		t.Fatalf("expected observer to see verifier error, got done=%v err=%v", observer.Done, observer.Err)
	}
	if verifier.Terminals != 1 {
		t.Fatalf("verifier should receive exactly one terminal, got %d", verifier.Terminals)
	}
}

func TestStream_WarningsReachWarningHandlers(t *testing.T) {
	s := stream.New[int]()
	rec := stream.NewRecorder[int]()
	s.Register(rec)
	s.Register(stream.HandlerFuncs[int]{})
	s.Warn(stream.Warning{Message: "careful", Code: "${x}"})
	s.SignalDone()

	want := []stream.Warning{{Message: "careful", Code: "${x}"}}
	if diff := cmp.Diff(want, rec.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_NilErrorIsReplaced(t *testing.T) {
	s := stream.New[int]()
	rec := stream.NewRecorder[int]()
	s.Register(rec)
	s.SignalError(nil)

	if !errors.Is(rec.Err, stream.ErrUnspecified) {
		t.Fatalf("expected ErrUnspecified, got %v", rec.Err)
	}
}
