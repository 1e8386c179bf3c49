package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-tplc"
	"github.com/goliatone/go-tplc/pkg/config"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
)

const (
	yesFlag   = "yes"
	forceFlag = "force"
)

var logLevels = []string{"debug", "info", "warn", "error", "none"}

// NewInitCommand returns the command writing a configuration file and,
// optionally, starter templates.
func NewInitCommand(prompter Prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create a tplc.yaml and starter templates",
		Long:  "Ask for the project settings, write them to DIR/tplc.yaml and optionally scaffold starter templates under the template root.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, prompter, dir)
		},
	}

	flags := cmd.Flags()
	flags.BoolP(yesFlag, "y", false, "accept the defaults without prompting")
	flags.Bool(forceFlag, false, "overwrite an existing configuration file")
	return cmd
}

type initAnswers struct {
	config   config.Config
	scaffold bool
}

func runInit(cmd *cobra.Command, prompter Prompter, dir string) error {
	yes, _ := cmd.Flags().GetBool(yesFlag)
	force, _ := cmd.Flags().GetBool(forceFlag)

	target := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("%s already exists (use --%s to overwrite)", target, forceFlag)
	}

	answers := initAnswers{config: config.Default(), scaffold: true}
	answers.config.Templates.Root = "templates"
	if !yes {
		var err error
		answers, err = ask(cmd.Context(), prompter, answers)
		if err != nil {
			return err
		}
	}
	if err := answers.config.Check(); err != nil {
		return err
	}

	data, err := config.Marshal(answers.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %s\n", target)

	if !answers.scaffold {
		return nil
	}
	root := filepath.Join(dir, answers.config.Templates.Root)
	written, err := scaffold(tplc.StarterTemplates(), root)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(out, "created %s\n", path)
	}
	return nil
}

func ask(ctx context.Context, prompter Prompter, defaults initAnswers) (initAnswers, error) {
	answers := defaults
	cfg := &answers.config

	root, err := prompter.Input(ctx, "Template root directory", cfg.Templates.Root)
	if err != nil {
		return initAnswers{}, err
	}
	cfg.Templates.Root = root

	// Defaults first so the selection keeps their execution order.
	options := passes.DefaultNames()
	for _, name := range passes.NewRegistry().List() {
		if !slices.Contains(options, name) {
			options = append(options, name)
		}
	}
	selected, err := prompter.MultiSelect(ctx, "Optimisation passes", options, cfg.Passes)
	if err != nil {
		return initAnswers{}, err
	}
	cfg.Passes = selected

	if cfg.Validate, err = prompter.Confirm(ctx, "Validate region nesting before optimising?", cfg.Validate); err != nil {
		return initAnswers{}, err
	}
	if cfg.Templates.CheckModified, err = prompter.Confirm(ctx, "Recompile templates when their source changes?", cfg.Templates.CheckModified); err != nil {
		return initAnswers{}, err
	}
	if cfg.Log.Level, err = prompter.Select(ctx, "Log level", logLevels, cfg.Log.Level); err != nil {
		return initAnswers{}, err
	}
	if answers.scaffold, err = prompter.Confirm(ctx, "Create starter templates?", answers.scaffold); err != nil {
		return initAnswers{}, err
	}
	return answers, nil
}

// scaffold copies files into root, leaving existing files untouched.
func scaffold(files fs.FS, root string) ([]string, error) {
	var written []string
	err := fs.WalkDir(files, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		target := filepath.Join(root, filepath.FromSlash(path))
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, err := os.Stat(target); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		data, err := fs.ReadFile(files, path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
		written = append(written, target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scaffold templates: %w", err)
	}
	return written, nil
}
