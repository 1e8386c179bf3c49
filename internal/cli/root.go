// Package cli contains the commands of the tplc binary.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-tplc"
	"github.com/goliatone/go-tplc/pkg/config"
	"github.com/goliatone/go-tplc/pkg/logger"
)

const (
	configFlag    = "config"
	rootFlag      = "root"
	logLevelFlag  = "log-level"
	logFormatFlag = "log-format"
	passesFlag    = "passes"
)

// NewRootCommand wires every subcommand. Settings come from flags, then the
// config file, then config.Default.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newSurveyPrompter())
}

func newRootCommand(prompter Prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tplc",
		Short: "Compile markup templates into pongo2 units",
		Long: `tplc compiles data-sly markup templates through an instruction-stream
pipeline (front-end, validator, optimisation passes, backend) into pongo2
templates, and renders them with YAML or JSON data.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String(configFlag, config.DefaultFile, "path to the configuration file")
	flags.String(rootFlag, "", "template root directory (overrides templates.root)")
	flags.String(logLevelFlag, "", "log level: debug, info, warn, error or none")
	flags.String(logFormatFlag, "", "log format: json or text")
	flags.StringSlice(passesFlag, nil, "optimisation passes to run, in order (overrides passes)")

	cmd.AddCommand(
		NewCompileCommand(),
		NewRenderCommand(),
		NewPassesCommand(),
		NewInitCommand(prompter),
	)
	return cmd
}

// settings resolves the configuration and logger for a command run.
func settings(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString(configFlag)

	cfg := config.Default()
	loaded, err := config.Load(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	switch {
	case err == nil:
		cfg = loaded
		if !filepath.IsAbs(cfg.Templates.Root) {
			cfg.Templates.Root = filepath.Join(filepath.Dir(path), cfg.Templates.Root)
		}
	case errors.Is(err, fs.ErrNotExist) && !flags.Changed(configFlag):
	default:
		return config.Config{}, err
	}

	if flags.Changed(rootFlag) {
		cfg.Templates.Root, _ = flags.GetString(rootFlag)
	}
	if flags.Changed(logLevelFlag) {
		cfg.Log.Level, _ = flags.GetString(logLevelFlag)
	}
	if flags.Changed(logFormatFlag) {
		cfg.Log.Format, _ = flags.GetString(logFormatFlag)
	}
	if flags.Changed(passesFlag) {
		cfg.Passes, _ = flags.GetStringSlice(passesFlag)
	}
	if err := cfg.Check(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newEngine(cmd *cobra.Command) (*tplc.Engine, config.Config, error) {
	cfg, log, err := settings(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	engine, err := tplc.New(tplc.WithConfig(cfg), tplc.WithLogger(log))
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("create engine: %w", err)
	}
	return engine, cfg, nil
}
