package testsupport

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/frontend/markup"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
)

// LoadSource reads a markup fixture, failing the test on error.
func LoadSource(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load source: %v", err)
	}
	return string(data)
}

// MustCompile runs source through the markup front-end, the validator and
// the default passes, returning the instructions that reach the backend.
func MustCompile(t *testing.T, source string) []command.Command {
	t.Helper()

	c := compiler.New[command.Command](markup.New(),
		compiler.WithClassifier(command.Regions),
		compiler.WithPasses(passes.Default()),
	)
	collector := compiler.Collect[command.Command]()
	if _, err := c.Compile(context.Background(), source, collector); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return collector.Instructions
}

// AssertGolden compares got with the golden file at path. With
// UPDATE_GOLDENS set the file is rewritten instead.
func AssertGolden(t *testing.T, path, got string) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") != "" {
		writeGolden(t, path, []byte(got))
		return
	}
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	if diff := cmp.Diff(string(want), got); diff != "" {
		t.Fatalf("golden %s mismatch (-want +got):\n%s", path, diff)
	}
}

func writeGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// CaptureOutput executes a render function that writes to an io.Writer,
// returning both the string result and the writer contents. Tests can assert
// a unit returns and writes the same payload without duplicating buffer
// setup.
func CaptureOutput(t *testing.T, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()

	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	return out, buf.String()
}
