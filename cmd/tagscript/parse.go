package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
)

// node is the printable form of a parsed node
type node struct {
	Kind        string  `yaml:"kind"`
	Source      string  `yaml:"source"`
	Declaration string  `yaml:"declaration,omitempty"`
	Parameter   *string `yaml:"parameter,omitempty"`
	Payload     *string `yaml:"payload,omitempty"`
}

func newParseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [template]",
		Short: "Print the top-level nodes of a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := opts.readTemplate(cmd, args)
			if err != nil {
				return err
			}

			parsed := tagscript.Parse(script)
			nodes := make([]node, 0, len(parsed))
			for _, n := range parsed {
				if n.Kind == tagscript.NodeText {
					nodes = append(nodes, node{Kind: "text", Source: n.Source})
					continue
				}
				nodes = append(nodes, node{
					Kind:        "block",
					Source:      n.Source,
					Declaration: n.Verb.Declaration,
					Parameter:   n.Verb.Parameter,
					Payload:     n.Verb.Payload,
				})
			}

			data, err := yaml.Marshal(nodes)
			if err != nil {
				return fmt.Errorf("failed to encode nodes: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
