package passes_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/optimize"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
	"github.com/goliatone/go-tplc/pkg/stream"
)

func apply(t *testing.T, chain optimize.Chain[command.Command], input []command.Command) []command.Command {
	t.Helper()
	raw := stream.New[command.Command]()
	out := chain.Apply(raw)
	rec := stream.NewRecorder[command.Command]()
	out.Register(rec)
	for _, inst := range input {
		raw.Emit(inst)
	}
	raw.SignalDone()
	if !rec.Done {
		t.Fatalf("expected chain to complete, err=%v", rec.Err)
	}
	return rec.Instructions
}

func text(s string) command.Command {
	return command.OutText{Text: s}
}

func bind(name, expr string) command.Command {
	return command.VarBindingStart{Name: name, Expr: expression.MustParse(expr).Root}
}

func TestCoalesceTextMergesAdjacentText(t *testing.T) {
	chain := optimize.Chain[command.Command]{passes.NewCoalesceText()}
	got := apply(t, chain, []command.Command{text("Hello"), text(" "), text("World")})

	if diff := cmp.Diff([]command.Command{text("Hello World")}, got); diff != "" {
		t.Fatalf("coalesce mismatch (-want +got):\n%s", diff)
	}

	again := apply(t, chain, got)
	if diff := cmp.Diff(got, again); diff != "" {
		t.Fatalf("coalesce is not idempotent (-first +second):\n%s", diff)
	}
}

func TestCoalesceTextStopsAtOtherInstructions(t *testing.T) {
	input := []command.Command{
		text("a"), text("b"),
		command.OutVariable{Name: "v"},
		text("c"),
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewCoalesceText()}, input)
	want := []command.Command{text("ab"), command.OutVariable{Name: "v"}, text("c")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesceTextDiscardsBufferOnError(t *testing.T) {
	raw := stream.New[command.Command]()
	out := optimize.Attach(raw, passes.NewCoalesceText())
	rec := stream.NewRecorder[command.Command]()
	out.Register(rec)

	raw.Emit(text("held"))
	raw.SignalError(errors.New("parse failed"))

	if len(rec.Instructions) != 0 {
		t.Fatalf("expected no instructions after error, got %v", rec.Instructions)
	}
	if rec.Err == nil || rec.Terminals != 1 {
		t.Fatalf("expected exactly one error, got err=%v terminals=%d", rec.Err, rec.Terminals)
	}
}

func TestDropEmptyText(t *testing.T) {
	got := apply(t, optimize.Chain[command.Command]{passes.NewDropEmptyText()}, []command.Command{
		text(""), text("x"), text(""),
	})
	if diff := cmp.Diff([]command.Command{text("x")}, got); diff != "" {
		t.Fatalf("drop mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeDropsIgnoredRegion(t *testing.T) {
	input := []command.Command{
		text("<p>"),
		bind("ignore", "false"),
		command.ConditionalStart{Var: "ignore", Expected: true},
		text("<div>"),
		command.LoopStart{List: "items", Item: "item"},
		command.OutVariable{Name: "item"},
		command.LoopEnd{},
		command.ConditionalEnd{},
		command.VarBindingEnd{},
		text("</p>"),
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	want := []command.Command{text("<p>"), text("</p>")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeUnwrapsPassingConditional(t *testing.T) {
	input := []command.Command{
		bind("show", "1 < 2"),
		command.ConditionalStart{Var: "show", Expected: true},
		text("visible"),
		command.ConditionalEnd{},
		command.ConditionalStart{Var: "show", Expected: false},
		text("hidden"),
		command.ConditionalEnd{},
		command.VarBindingEnd{},
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	want := []command.Command{text("visible")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeKeepsDynamicConditionals(t *testing.T) {
	input := []command.Command{
		bind("flag", "page.enabled"),
		command.ConditionalStart{Var: "flag", Expected: true},
		text("on"),
		command.ConditionalEnd{},
		command.VarBindingEnd{},
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeRespectsShadowing(t *testing.T) {
	input := []command.Command{
		bind("v", "false"),
		command.LoopStart{List: "items", Item: "v"},
		command.ConditionalStart{Var: "v", Expected: true},
		text("item"),
		command.ConditionalEnd{},
		command.LoopEnd{},
		command.VarBindingEnd{},
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeProcedureBodyDoesNotSeeOuterConstants(t *testing.T) {
	input := []command.Command{
		bind("v", "true"),
		command.ProcedureStart{Name: "card", Params: []string{"title"}},
		command.ConditionalStart{Var: "v", Expected: true},
		text("x"),
		command.ConditionalEnd{},
		command.ProcedureEnd{},
		command.VarBindingEnd{},
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadCodeReleasesBindingOnFirstRead(t *testing.T) {
	input := []command.Command{
		bind("label", "'Hi'"),
		text("<b>"),
		command.OutVariable{Name: "label"},
		command.VarBindingEnd{},
	}
	got := apply(t, optimize.Chain[command.Command]{passes.NewDeadCode()}, input)
	want := []command.Command{
		text("<b>"),
		bind("label", "'Hi'"),
		command.OutVariable{Name: "label"},
		command.VarBindingEnd{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dead-code mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultChainIsIdempotent(t *testing.T) {
	input := []command.Command{
		text("<ul>"),
		bind("hide", "false"),
		command.ConditionalStart{Var: "hide", Expected: true},
		text("<li>"),
		command.ConditionalEnd{},
		command.VarBindingEnd{},
		text(""),
		text("</ul>"),
	}
	first := apply(t, passes.Default(), input)
	want := []command.Command{text("<ul></ul>")}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("default chain mismatch (-want +got):\n%s", diff)
	}
	second := apply(t, passes.Default(), first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("default chain is not idempotent (-first +second):\n%s", diff)
	}
}

func TestRegistryHoldsBuiltins(t *testing.T) {
	reg := passes.NewRegistry()
	want := []string{passes.CoalesceText, passes.DeadCode, passes.DropEmptyText}
	if diff := cmp.Diff(want, reg.List()); diff != "" {
		t.Fatalf("registry mismatch (-want +got):\n%s", diff)
	}
	chain, err := reg.Resolve(passes.DefaultNames())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if diff := cmp.Diff(passes.DefaultNames(), chain.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}
