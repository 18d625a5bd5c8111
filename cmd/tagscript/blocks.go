package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBlocksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "List the block names the interpreter understands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interpreter, err := opts.interpreter(opts.logger())
			if err != nil {
				return err
			}

			for _, name := range interpreter.Registry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
