package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/config"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
)

type scriptedPrompter struct {
	inputs   []string
	confirms []bool
	selects  []string
	multi    [][]string
}

func (p *scriptedPrompter) Input(context.Context, string, string) (string, error) {
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	return v, nil
}

func (p *scriptedPrompter) Confirm(context.Context, string, bool) (bool, error) {
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

func (p *scriptedPrompter) Select(context.Context, string, []string, string) (string, error) {
	v := p.selects[0]
	p.selects = p.selects[1:]
	return v, nil
}

func (p *scriptedPrompter) MultiSelect(context.Context, string, []string, []string) ([]string, error) {
	v := p.multi[0]
	p.multi = p.multi[1:]
	return v, nil
}

func execute(t *testing.T, prompter Prompter, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(prompter)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestCompilePrintsGeneratedSource(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"page.html": "<p>${title}</p>"})

	out, _, err := execute(t, nil, "compile", "--root", root, "--log-level", "none", "page.html")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.HasPrefix(out, "{% autoescape off %}<p>") || !strings.Contains(out, "tplc_xss") {
		t.Fatalf("unexpected source %q", out)
	}
}

func TestCompileDumpKeepsArgumentOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.html": "<p>a</p>",
		"b.html": `<p data-sly-test="${false}">b</p>`,
	})

	out, _, err := execute(t, nil, "compile", "--root", root, "--log-level", "none", "--dump", "a.html", "b.html")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "==> a.html <==\n" + `out.text "<p>a</p>"` + "\n\n==> b.html <==\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestCompilePassesFlagOverridesConfig(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.html": "<p>a</p>"})

	out, _, err := execute(t, nil, "compile", "--root", root, "--log-level", "none", "--dump", "--passes", passes.DropEmptyText, "a.html")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if strings.Count(out, "out.text") != 3 {
		t.Fatalf("expected uncoalesced text, got:\n%s", out)
	}
}

func TestCompileReportsFailingTemplate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"ok.html":     "<p>ok</p>",
		"broken.html": "<p>${name</p>",
	})

	_, _, err := execute(t, nil, "compile", "--root", root, "--log-level", "none", "ok.html", "broken.html")
	if err == nil || !strings.Contains(err.Error(), "broken.html") {
		t.Fatalf("expected failure naming broken.html, got %v", err)
	}
}

func TestRenderWithDataFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"list.html": `<ul data-sly-list="${items}"><li>${item.name}</li></ul>`,
		"data.json": `{"items": [{"name": "a"}, {"name": "<b>"}]}`,
	})
	output := filepath.Join(root, "out.html")

	_, _, err := execute(t, nil, "render", "--root", root, "--log-level", "none",
		"--data", filepath.Join(root, "data.json"), "-o", output, "list.html")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "<ul><li>a</li><li>&lt;b&gt;</li></ul>" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRenderReadsDataFromStdin(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"hello.html": "Hello ${name}"})

	cmd := newRootCommand(nil)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetIn(strings.NewReader("name: Ada\n"))
	cmd.SetArgs([]string{"render", "--root", root, "--log-level", "none", "--data", "-", "hello.html"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("render: %v", err)
	}
	if stdout.String() != "Hello Ada" {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestPassesMarksEnabledPasses(t *testing.T) {
	out, _, err := execute(t, nil, "passes", "--passes", passes.CoalesceText+","+passes.DeadCode)
	if err != nil {
		t.Fatalf("passes: %v", err)
	}
	want := "* coalesce-text (1)\n* dead-code (2)\n  drop-empty-text\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownPassFails(t *testing.T) {
	if _, _, err := execute(t, nil, "passes", "--passes", "inline"); err == nil {
		t.Fatalf("expected unknown pass error")
	}
}

func TestInitWithDefaultsScaffoldsProject(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, nil, "init", "--yes", dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "wrote "+filepath.Join(dir, config.DefaultFile)) {
		t.Fatalf("unexpected output %q", out)
	}

	cfgPath := filepath.Join(dir, config.DefaultFile)
	rendered, _, err := execute(t, nil, "render", "--config", cfgPath, "--log-level", "none",
		"--data", filepath.Join(dir, "templates", "data.yaml"), "index.html")
	if err != nil {
		t.Fatalf("render scaffold: %v", err)
	}
	if !strings.Contains(rendered, `<nav><a href="/">My site</a></nav>`) {
		t.Fatalf("unexpected render output:\n%s", rendered)
	}

	if _, _, err := execute(t, nil, "init", "--yes", dir); err == nil {
		t.Fatalf("expected existing config to be protected")
	}
	if _, _, err := execute(t, nil, "init", "--yes", "--force", dir); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestInitUsesPromptAnswers(t *testing.T) {
	dir := t.TempDir()
	prompter := &scriptedPrompter{
		inputs:   []string{"views"},
		multi:    [][]string{{passes.CoalesceText}},
		confirms: []bool{false, true, false},
		selects:  []string{"debug"},
	}

	if _, _, err := execute(t, prompter, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.Load(os.DirFS(dir), config.DefaultFile)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	want := config.Default()
	want.Passes = []string{passes.CoalesceText}
	want.Validate = false
	want.Templates.Root = "views"
	want.Templates.CheckModified = true
	want.Log.Level = "debug"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "views")); !os.IsNotExist(err) {
		t.Fatalf("expected no scaffold, stat err %v", err)
	}
}
