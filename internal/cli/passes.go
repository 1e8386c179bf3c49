package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-tplc/pkg/optimize/passes"
)

// NewPassesCommand returns the command listing the optimisation passes.
func NewPassesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Short: "List the available optimisation passes",
		Long:  "List every registered optimisation pass. Passes enabled by the active configuration are marked with *, in execution order.",
		Args:  cobra.NoArgs,
		RunE:  runPasses,
	}
}

func runPasses(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, name := range passes.NewRegistry().List() {
		position := slices.Index(cfg.Passes, name)
		if position < 0 {
			if _, err := fmt.Fprintf(out, "  %s\n", name); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(out, "* %s (%d)\n", name, position+1); err != nil {
			return err
		}
	}
	return nil
}
