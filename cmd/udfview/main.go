package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	udfkit "github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
)

var version = "dev"

type rootOptions struct {
	verbose bool
	asYAML  bool
	tree    bool
	noColor bool
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:           "udfview <image>",
	Short:         "Print the volumes, partitions and file tree of a UDF image.",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "udfview version: %s\n", version)
		return nil
	},
	DisableFlagsInUseLine: true,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print debug output while parsing")
	rootCmd.Flags().BoolVarP(&opts.asYAML, "yaml", "y", false, "Print the description as YAML")
	rootCmd.Flags().BoolVarP(&opts.tree, "tree", "t", false, "Include the file tree")
	rootCmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored log output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "udfview: %s\n", err.Error())
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	level := logging.LEVEL_INFO
	if opts.verbose {
		level = logging.LEVEL_DEBUG
	}
	logger := logging.NewLogger(logging.NewSimpleLogger(cmd.ErrOrStderr(), level, !opts.noColor))

	image, err := udfkit.Open(args[0], option.WithLogger(logger))
	if err != nil {
		return err
	}

	var recognition []string
	if seq, err := image.RecognitionSequence(); err == nil {
		recognition = seq.Identifiers()
	}

	v := describe(image, recognition, opts.tree)
	if opts.asYAML {
		return writeYAML(cmd.OutOrStdout(), v)
	}
	writeText(cmd.OutOrStdout(), v)
	return nil
}
