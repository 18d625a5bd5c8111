package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [template]",
		Short: "Check a template against the length limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := opts.readTemplate(cmd, args)
			if err != nil {
				return err
			}

			service, err := opts.service()
			if err != nil {
				return err
			}
			if err := service.ValidateTagScript(script); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok (%s of %s characters)\n",
				humanize.Comma(int64(utf8.RuneCountInString(script))),
				humanize.Comma(int64(opts.limit)))
			return nil
		},
	}
}
