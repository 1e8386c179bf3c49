package pongo_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/backend/pongo"
	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/diag"
	"github.com/goliatone/go-tplc/pkg/expression"
	"github.com/goliatone/go-tplc/pkg/frontend/markup"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
	"github.com/goliatone/go-tplc/pkg/stream"
	"github.com/goliatone/go-tplc/pkg/testsupport"
)

func newEngine(t *testing.T, options ...pongo.Option) *pongo.Engine {
	t.Helper()
	files := fstest.MapFS{
		"partials/item.html": {Data: []byte("{% autoescape off %}<b>{{ name }}</b>{% endautoescape %}")},
	}
	engine, err := pongo.New(append([]pongo.Option{pongo.WithFS(files)}, options...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func run(engine *pongo.Engine, name string, cmds ...command.Command) *pongo.Backend {
	s := stream.New[command.Command]()
	be := engine.NewBackend(name)
	s.Register(be)
	for _, c := range cmds {
		s.Emit(c)
	}
	s.SignalDone()
	return be
}

func escapeCall(name, source, ctx string) []command.Command {
	return []command.Command{
		command.VarBindingStart{Name: name, Expr: expression.RuntimeCall{
			Name: "xss",
			Args: []expression.Node{expression.Identifier{Name: source}, expression.StringConst{Value: ctx}},
		}},
		command.OutVariable{Name: name},
		command.VarBindingEnd{},
	}
}

func render(t *testing.T, unit *pongo.Unit, data any) string {
	t.Helper()
	result, written := testsupport.CaptureOutput(t, func(w io.Writer) (string, error) {
		if err := unit.Execute(context.Background(), w, data); err != nil {
			return "", err
		}
		return unit.Render(context.Background(), data)
	})
	if result != written {
		t.Fatalf("render and execute disagree\nrender:  %q\nexecute: %q", result, written)
	}
	return result
}

func TestBackendTranslatesBindingsAndOutput(t *testing.T) {
	cmds := []command.Command{
		command.OutText{Text: "<p>"},
		command.VarBindingStart{Name: "v", Expr: expression.Identifier{Name: "name"}},
	}
	cmds = append(cmds, escapeCall("x", "v", pongo.ContextText)...)
	cmds = append(cmds, command.VarBindingEnd{}, command.OutText{Text: "</p>"})

	be := run(newEngine(t), "page.html", cmds...)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}

	wantSource := `{% autoescape off %}<p>{% with v=name %}{% with x=v|tplc_xss:"text" %}{{ x }}{% endwith %}{% endwith %}</p>{% endautoescape %}`
	if diff := cmp.Diff(wantSource, be.Source()); diff != "" {
		t.Fatalf("source mismatch (-want +got):\n%s", diff)
	}
	if got := render(t, be.Unit(), map[string]any{"name": `<b>&"`}); got != "<p>&lt;b&gt;&amp;&#34;</p>" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBackendConditionalsAndLoops(t *testing.T) {
	be := run(newEngine(t), "list.html",
		command.VarBindingStart{Name: "items", Expr: expression.Identifier{Name: "rows"}},
		command.ConditionalStart{Var: "items", Expected: true},
		command.LoopStart{List: "items", Item: "row"},
		command.OutVariable{Name: "row"},
		command.LoopEnd{},
		command.ConditionalEnd{},
		command.ConditionalStart{Var: "items", Expected: false},
		command.OutText{Text: "none"},
		command.ConditionalEnd{},
		command.VarBindingEnd{},
	)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}
	if got := render(t, be.Unit(), map[string]any{"rows": []any{1, 2, 3}}); got != "123" {
		t.Fatalf("unexpected output %q", got)
	}
	if got := render(t, be.Unit(), map[string]any{"rows": []any{}}); got != "none" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBackendHoistsProcedures(t *testing.T) {
	cmds := []command.Command{
		command.OutText{Text: "<div>"},
		command.VarBindingStart{Name: "a", Expr: expression.StringConst{Value: "Hi"}},
		command.ProcedureCall{Name: "card", Args: []command.Argument{{Name: "title", Var: "a"}, {Name: "extra", Var: "a"}}},
		command.VarBindingEnd{},
		command.OutText{Text: "</div>"},
		command.ProcedureStart{Name: "card", Params: []string{"title", "subtitle"}},
		command.OutText{Text: "<h2>"},
	}
	cmds = append(cmds, escapeCall("x", "title", pongo.ContextText)...)
	cmds = append(cmds, command.OutText{Text: "</h2>"}, command.ProcedureEnd{})

	be := run(newEngine(t), "cards.html", cmds...)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}
	wantSource := `{% autoescape off %}{% macro card(title, subtitle) %}<h2>{% with x=title|tplc_xss:"text" %}{{ x }}{% endwith %}</h2>{% endmacro %}` +
		`<div>{% with a="Hi" %}{{ card(a, nil) }}{% endwith %}</div>{% endautoescape %}`
	if diff := cmp.Diff(wantSource, be.Source()); diff != "" {
		t.Fatalf("source mismatch (-want +got):\n%s", diff)
	}
	if got := render(t, be.Unit(), nil); got != "<div><h2>Hi</h2></div>" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBackendKeepsTemplateDelimitersLiteral(t *testing.T) {
	literal := "{{ x }} {% if %} {# c #} {"
	be := run(newEngine(t), "raw.html", command.OutText{Text: literal})
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}
	if got := render(t, be.Unit(), map[string]any{"x": "no"}); got != literal {
		t.Fatalf("expected %q, got %q", literal, got)
	}
}

func TestBackendTrailingBraceBeforeGeneratedTag(t *testing.T) {
	be := run(newEngine(t), "brace.html",
		command.OutText{Text: "{"},
		command.ConditionalStart{Var: "x", Expected: true},
		command.OutText{Text: "y"},
		command.ConditionalEnd{},
		command.OutText{Text: "a{"},
	)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}
	if got := render(t, be.Unit(), map[string]any{"x": true}); got != "{ya{" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestCompileMarkupWithBraceAroundExpression(t *testing.T) {
	c := compiler.New[command.Command](markup.New(),
		compiler.WithClassifier(command.Regions),
		compiler.WithPasses(passes.Default()),
	)
	be := newEngine(t).NewBackend("code.html")
	if _, err := c.Compile(context.Background(), "<code>{${name}}</code>", be); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := render(t, be.Unit(), map[string]any{"name": "Ada"}); got != "<code>{Ada}</code>" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBackendResolvesIncludesRelativeToUnit(t *testing.T) {
	be := run(newEngine(t), "pages/list.html",
		command.OutText{Text: "["},
		command.Include{Path: "../partials/item.html"},
		command.OutText{Text: "]"},
	)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}
	if !strings.Contains(be.Source(), `"partials/item.html"`) {
		t.Fatalf("expected resolved include path in source, got %s", be.Source())
	}
	if got := render(t, be.Unit(), map[string]any{"name": "Ada"}); got != "[<b>Ada</b>]" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBackendTranslatesExpressions(t *testing.T) {
	expr := expression.MustParse("(count > 2 && !hidden) || user.role == 'admin'")
	be := run(newEngine(t), "expr.html",
		command.VarBindingStart{Name: "ok", Expr: expr.Root},
		command.ConditionalStart{Var: "ok", Expected: true},
		command.OutText{Text: "yes"},
		command.ConditionalEnd{},
		command.VarBindingEnd{},
	)
	if be.Err() != nil {
		t.Fatalf("backend error: %v", be.Err())
	}

	cases := []struct {
		data map[string]any
		want string
	}{
		{data: map[string]any{"count": 3, "hidden": false}, want: "yes"},
		{data: map[string]any{"count": 3, "hidden": true}, want: ""},
		{data: map[string]any{"count": 1, "user": map[string]any{"role": "admin"}}, want: "yes"},
		{data: map[string]any{"count": 1, "user": map[string]any{"role": "guest"}}, want: ""},
	}
	for _, tc := range cases {
		if got := render(t, be.Unit(), tc.data); got != tc.want {
			t.Fatalf("data %v: expected %q, got %q", tc.data, tc.want, got)
		}
	}
}

func TestBackendRejectsUnsupportedInput(t *testing.T) {
	cases := map[string][]command.Command{
		"namespaced identifier": {
			command.VarBindingStart{Name: "v", Expr: expression.Identifier{Name: "properties:title"}},
			command.VarBindingEnd{},
		},
		"reserved identifier": {
			command.OutVariable{Name: "in"},
		},
		"multi-line string": {
			command.VarBindingStart{Name: "v", Expr: expression.StringConst{Value: "a\nb"}},
			command.VarBindingEnd{},
		},
		"unknown runtime call": {
			command.VarBindingStart{Name: "v", Expr: expression.RuntimeCall{Name: "format"}},
			command.VarBindingEnd{},
		},
		"unknown procedure": {
			command.ProcedureCall{Name: "missing"},
		},
		"include outside root": {
			command.Include{Path: "../../etc/passwd"},
		},
		"end without start": {
			command.ConditionalEnd{},
		},
		"unclosed region": {
			command.LoopStart{List: "items", Item: "item"},
		},
	}
	for name, cmds := range cases {
		t.Run(name, func(t *testing.T) {
			be := run(newEngine(t), "bad.html", cmds...)
			var backendErr *diag.BackendError
			if !errors.As(be.Err(), &backendErr) {
				t.Fatalf("expected backend error, got %v", be.Err())
			}
			if be.Unit() != nil {
				t.Fatalf("expected no unit after failure")
			}
		})
	}
}

func TestBackendDiscardsOnStreamError(t *testing.T) {
	s := stream.New[command.Command]()
	be := newEngine(t).NewBackend("x.html")
	s.Register(be)
	s.Emit(command.OutText{Text: "partial"})
	s.SignalError(errors.New("front-end failed"))

	if be.Err() != nil {
		t.Fatalf("expected no backend error, got %v", be.Err())
	}
	if be.Unit() != nil || be.Source() != "" {
		t.Fatalf("expected no artifact after stream error")
	}
}

func TestCompileMarkupToUnit(t *testing.T) {
	engine := newEngine(t)
	c := compiler.New[command.Command](markup.New(),
		compiler.WithClassifier(command.Regions),
		compiler.WithPasses(passes.Default()),
	)
	source := `<ul data-sly-list="${items}"><li title="${item.title}">${item.name}</li></ul>` +
		`<p data-sly-test="${!items}">empty</p>`

	be := engine.NewBackend("list.html")
	if _, err := c.Compile(context.Background(), source, be); err != nil {
		t.Fatalf("compile: %v", err)
	}

	full := map[string]any{"items": []any{map[string]any{"name": "<a>", "title": `x"y`}}}
	if got := render(t, be.Unit(), full); got != `<ul><li title="x&#34;y">&lt;a&gt;</li></ul>` {
		t.Fatalf("unexpected output %q", got)
	}
	if got := render(t, be.Unit(), map[string]any{"items": []any{}}); got != "<p>empty</p>" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestCompileReportsBackendFailure(t *testing.T) {
	c := compiler.New[command.Command](markup.New(), compiler.WithClassifier(command.Regions))
	_, err := c.Compile(context.Background(), "${properties:title}", newEngine(t).NewBackend("x.html"))

	var failure *compiler.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected compiler failure, got %v", err)
	}
	if failure.Kind != diag.KindBackend {
		t.Fatalf("expected backend failure, got %s", failure.Kind)
	}
}

func TestManipulateURI(t *testing.T) {
	empty := ""
	top := "top"
	cases := []struct {
		in   string
		opts pongo.URIOptions
		want string
	}{
		{in: "/docs/page.html", opts: pongo.URIOptions{Extension: "json"}, want: "/docs/page.json"},
		{in: "/docs/page.print.html", opts: pongo.URIOptions{Extension: ".txt"}, want: "/docs/page.print.txt"},
		{in: "/docs/page", opts: pongo.URIOptions{Extension: "html"}, want: "/docs/page.html"},
		{in: "/docs/", opts: pongo.URIOptions{Extension: "html"}, want: "/docs/"},
		{in: "http://example.com:8080/a.html", opts: pongo.URIOptions{Scheme: "https", Domain: "cdn.example.com"}, want: "https://cdn.example.com:8080/a.html"},
		{in: "/a.html", opts: pongo.URIOptions{Domain: "example.com"}, want: "//example.com/a.html"},
		{in: "/a.html#old", opts: pongo.URIOptions{Fragment: &top}, want: "/a.html#top"},
		{in: "/a.html#old", opts: pongo.URIOptions{Fragment: &empty}, want: "/a.html"},
		{in: "", opts: pongo.URIOptions{Scheme: "https"}, want: ""},
	}
	for _, tc := range cases {
		if got := pongo.ManipulateURI(tc.in, tc.opts); got != tc.want {
			t.Fatalf("manipulate %q: expected %q, got %q", tc.in, tc.want, got)
		}
	}

	if _, err := pongo.ParseURIOptions("selectors=print"); err == nil {
		t.Fatalf("expected unknown option error")
	}
}

func TestCompileMarkupWithURIOptions(t *testing.T) {
	c := compiler.New[command.Command](markup.New(),
		compiler.WithClassifier(command.Regions),
		compiler.WithPasses(passes.Default()),
	)
	be := newEngine(t).NewBackend("link.html")
	source := `<a href="${page @ extension='json', scheme='https'}">x</a>`
	if _, err := c.Compile(context.Background(), source, be); err != nil {
		t.Fatalf("compile: %v", err)
	}
	got := render(t, be.Unit(), map[string]any{"page": "http://example.com/docs/page.html"})
	if got != `<a href="https://example.com/docs/page.json">x</a>` {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEscape(t *testing.T) {
	cases := []struct {
		context string
		in      string
		want    string
	}{
		{context: pongo.ContextText, in: `<a href="x">'`, want: "&lt;a href=&#34;x&#34;&gt;&#39;"},
		{context: pongo.ContextAttribute, in: `a"b`, want: "a&#34;b"},
		{context: pongo.ContextHTML, in: "<b>ok</b><script>alert(1)</script>", want: "<b>ok</b>"},
		{context: pongo.ContextURI, in: "javascript:alert(1)", want: ""},
		{context: pongo.ContextURI, in: "https://example.com/?a=1&b=2", want: "https://example.com/?a=1&amp;b=2"},
		{context: pongo.ContextURI, in: "/docs/intro.html", want: "/docs/intro.html"},
		{context: pongo.ContextUnsafe, in: "<i>raw</i>", want: "<i>raw</i>"},
	}
	for _, tc := range cases {
		got, err := pongo.Escape(tc.in, tc.context)
		if err != nil {
			t.Fatalf("escape %q as %s: %v", tc.in, tc.context, err)
		}
		if got != tc.want {
			t.Fatalf("escape %q as %s: expected %q, got %q", tc.in, tc.context, tc.want, got)
		}
	}
	if _, err := pongo.Escape("x", "css"); err == nil {
		t.Fatalf("expected error for unknown context")
	}
}

func TestEngineRequiresLoader(t *testing.T) {
	if _, err := pongo.New(); err == nil {
		t.Fatalf("expected error without loaders")
	}
}

func TestEngineGlobalsAndFilters(t *testing.T) {
	engine := newEngine(t, pongo.WithFilter("tplc_test_shout", func(input any, _ any) (any, error) {
		return strings.ToUpper(input.(string)) + "!", nil
	}))
	if err := engine.GlobalContext(map[string]any{"site": map[string]any{"name": "docs"}}); err != nil {
		t.Fatalf("global context: %v", err)
	}
	unit, err := engine.Parse("inline", "{{ site.name|tplc_test_shout }}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := render(t, unit, nil); got != "DOCS!" {
		t.Fatalf("unexpected output %q", got)
	}

	if err := engine.RegisterFilter(pongo.XSSFilter, func(any, any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate filter error")
	}
}

func TestUnitExecuteHonoursCanceledContext(t *testing.T) {
	unit, err := newEngine(t).Parse("inline", "x")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := unit.Render(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
