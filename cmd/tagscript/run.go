package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// runOutput is what "run" prints
type runOutput struct {
	Output    *tags.Output    `yaml:"output"`
	Actions   []string        `yaml:"actions,omitempty"`
	Variables []tags.Variable `yaml:"variables,omitempty"`
	Elapsed   string          `yaml:"elapsed,omitempty"`
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		seedFile string
		argsText string
		timing   bool
	)

	cmd := &cobra.Command{
		Use:   "run [template]",
		Short: "Process a template and print the result",
		Long: `Process a template and print its output, actions and the variables it
referenced as YAML.

Variables can be seeded from a YAML file. Strings and numbers become plain
variables, mappings become attribute variables whose "default" key names the
attribute used by {name}:

  args: hello world
  count: 3
  author:
    default: name
    name: kim
    id: "1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := opts.readTemplate(cmd, args)
			if err != nil {
				return err
			}

			seed := map[string]tagscript.Adapter{}
			if seedFile != "" {
				data, err := os.ReadFile(seedFile)
				if err != nil {
					return fmt.Errorf("failed to read seed file: %w", err)
				}
				if seed, err = parseSeed(data); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("args") {
				seed["args"] = tagscript.NewStringAdapter(argsText)
			}

			service, err := opts.service()
			if err != nil {
				return err
			}

			report, err := service.Run(cmd.Context(), script, seed)
			if err != nil {
				return err
			}

			out := runOutput{
				Output:    report.Output,
				Actions:   report.Actions,
				Variables: report.Variables,
			}
			if timing {
				out.Elapsed = report.Elapsed.String()
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVarP(&seedFile, "seed", "s", "", "YAML file of seed variables")
	cmd.Flags().StringVarP(&argsText, "args", "a", "", "Value of {args}")
	cmd.Flags().BoolVar(&timing, "timing", false, "Include the processing time")

	return cmd
}

// parseSeed turns a YAML mapping into adapters
func parseSeed(data []byte) (map[string]tagscript.Adapter, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seed := make(map[string]tagscript.Adapter, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case int:
			seed[name] = tagscript.NewIntAdapter(v)
		case map[string]interface{}:
			attrs := make(map[string]string, len(v))
			def := ""
			for key, attr := range v {
				if key == "default" {
					def = fmt.Sprint(attr)
					continue
				}
				attrs[key] = fmt.Sprint(attr)
			}
			if def == "" {
				def = "name"
			}
			seed[name] = tagscript.NewAttributeAdapter(attrs, def)
		case string:
			seed[name] = tagscript.NewStringAdapter(v)
		case float64:
			seed[name] = tagscript.NewStringAdapter(strconv.FormatFloat(v, 'f', -1, 64))
		case nil:
			seed[name] = tagscript.NewStringAdapter("")
		default:
			return nil, fmt.Errorf("unsupported seed value for %q: %T", name, value)
		}
	}
	return seed, nil
}
