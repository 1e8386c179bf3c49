package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	dataFlag   = "data"
	outputFlag = "output"
)

// NewRenderCommand returns the command rendering one template with data read
// from a YAML or JSON file.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Render a template with YAML or JSON data",
		Long:  "Compile the named template and execute it. Data is read from --data, or from stdin when --data is \"-\".",
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}

	flags := cmd.Flags()
	flags.String(dataFlag, "", "YAML or JSON file holding the render data")
	flags.StringP(outputFlag, "o", "", "output file (stdout if empty)")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString(dataFlag)
	output, _ := cmd.Flags().GetString(outputFlag)

	data, err := readData(cmd.InOrStdin(), dataPath)
	if err != nil {
		return err
	}

	engine, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	out, err := engine.Render(cmd.Context(), args[0], data)
	if err != nil {
		return err
	}

	if output == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), out)
		return err
	}
	if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// readData decodes a YAML document; JSON input parses as YAML too.
func readData(stdin io.Reader, path string) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	switch path {
	case "":
		return nil, nil
	case "-":
		raw, err = io.ReadAll(stdin)
	default:
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, nil
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode data %s: %w", path, err)
	}
	return data, nil
}
