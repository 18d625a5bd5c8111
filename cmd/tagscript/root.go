package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/eval/cel"
	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// options are the flags shared by every command
type options struct {
	maxDepth  int
	dot       bool
	limit     int
	bodyLimit int
	verbose   bool
	file      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tagscript",
		Short: "Process, inspect and validate TagScript templates",
		Long: `tagscript runs TagScript templates outside of a bot.

Commands:
  tagscript run      Process a template and print the result as YAML
  tagscript parse    Print the top-level nodes of a template
  tagscript validate Check a template against the length limit
  tagscript blocks   List the block names the interpreter understands

Templates are read from the arguments, from --file, or from stdin when
neither is given.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().IntVar(&opts.maxDepth, "max-depth", tagscript.DefaultMaxDepth,
		"Maximum block nesting depth")
	rootCmd.PersistentFlags().BoolVar(&opts.dot, "dot", false,
		"Accept {name.attribute} as a shorthand for {name(attribute)}")
	rootCmd.PersistentFlags().IntVar(&opts.limit, "limit", tags.DefaultLimits().TagScript,
		"Maximum TagScript length in characters")
	rootCmd.PersistentFlags().IntVar(&opts.bodyLimit, "body-limit", tags.DefaultLimits().Body,
		"Maximum output length in characters")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Log interpreter diagnostics to stderr")
	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "",
		"Read the template from a file")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newParseCmd(opts))
	rootCmd.AddCommand(newValidateCmd(opts))
	rootCmd.AddCommand(newBlocksCmd(opts))

	return rootCmd
}

// logger returns a development logger in verbose mode
func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// interpreter builds an interpreter with CEL math
func (o *options) interpreter(logger *zap.Logger) (*tagscript.Interpreter, error) {
	tagOpts := []tagscript.Option{
		tagscript.WithMaxDepth(o.maxDepth),
		tagscript.WithLogger(logger),
	}
	if o.dot {
		tagOpts = append(tagOpts, tagscript.WithDotParameter())
	}

	interpreter, err := tagscript.NewInterpreter(tagscript.DefaultBlocks(cel.NewEvaluator()), tagOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	return interpreter, nil
}

// service builds an in-memory tag service
func (o *options) service() (*tags.Service, error) {
	logger := o.logger()

	interpreter, err := o.interpreter(logger)
	if err != nil {
		return nil, err
	}

	limits := tags.DefaultLimits()
	limits.TagScript = o.limit
	limits.Body = o.bodyLimit

	return tags.NewService(tags.NewMemoryStore(), interpreter, template.NewCatalog(template.NewEngine()), limits, logger), nil
}

// readTemplate reads the template from args, --file or stdin
func (o *options) readTemplate(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
