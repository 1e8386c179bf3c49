package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-tplc"
	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/source"
)

const (
	dumpFlag = "dump"
	jobsFlag = "jobs"
)

// NewCompileCommand returns the command printing generated pongo2 source or
// the optimised instruction listing of each named template.
func NewCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile NAME...",
		Short: "Compile templates and print the generated source",
		Long: `Compile each named template (relative to the template root) and print the
generated pongo2 source. With --dump the instructions reaching the backend
are printed instead. Templates compile concurrently; output keeps argument
order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCompile,
	}

	flags := cmd.Flags()
	flags.Bool(dumpFlag, false, "print the instruction listing instead of pongo2 source")
	flags.Int(jobsFlag, runtime.GOMAXPROCS(0), "maximum templates compiled at once")
	return cmd
}

type compiled struct {
	name     string
	output   string
	warnings []string
}

func runCompile(cmd *cobra.Command, names []string) error {
	engine, cfg, err := newEngine(cmd)
	if err != nil {
		return err
	}
	dump, _ := cmd.Flags().GetBool(dumpFlag)
	jobs, _ := cmd.Flags().GetInt(jobsFlag)

	loader := tplc.NewLoader()
	resolve := source.DirResolver(cfg.Templates.Root)

	results := make([]compiled, len(names))
	g, ctx := errgroup.WithContext(cmd.Context())
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			var (
				out compiled
				err error
			)
			if dump {
				out, err = dumpTemplate(ctx, engine, loader, resolve, name)
			} else {
				out, err = compileTemplate(ctx, engine, name)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printCompiled(cmd.OutOrStdout(), cmd.ErrOrStderr(), results)
}

func compileTemplate(ctx context.Context, engine *tplc.Engine, name string) (compiled, error) {
	unit, result, err := engine.Compile(ctx, name)
	if err != nil {
		return compiled{}, err
	}
	return compiled{name: name, output: unit.Source() + "\n", warnings: warningLines(result)}, nil
}

func dumpTemplate(ctx context.Context, engine *tplc.Engine, loader source.Loader, resolve source.Resolver, name string) (compiled, error) {
	src, err := resolve(name)
	if err != nil {
		return compiled{}, err
	}
	doc, err := loader.Load(ctx, src)
	if err != nil {
		return compiled{}, err
	}
	cmds, result, err := tplc.Dump(ctx, engine.Compiler(), doc.Text())
	if err != nil {
		return compiled{}, err
	}
	return compiled{name: name, output: command.Listing(cmds), warnings: warningLines(result)}, nil
}

func warningLines(result tplc.Result) []string {
	lines := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		if w.Code == "" {
			lines = append(lines, w.Message)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s [%s]", w.Message, w.Code))
	}
	return lines
}

func printCompiled(out, errOut io.Writer, results []compiled) error {
	for i, r := range results {
		for _, w := range r.warnings {
			if _, err := fmt.Fprintf(errOut, "%s: warning: %s\n", r.name, w); err != nil {
				return err
			}
		}
		if len(results) > 1 {
			if i > 0 {
				if _, err := fmt.Fprintln(out); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(out, "==> %s <==\n", r.name); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(out, r.output); err != nil {
			return err
		}
	}
	return nil
}
