package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	udfkit "github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/config"
	"github.com/bgrewell/udf-kit/pkg/destination"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/udf"
)

var version = "dev"

type rootOptions struct {
	configPath    string
	outputDir     string
	verbosity     int
	digests       bool
	preserveTimes bool
	manifest      string
	chunkSize     int
	force         bool
	noColor       bool
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:           "udfextract <image>",
	Short:         "Extract the files of a UDF image.",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "udfextract version: %s\n", version)
		return nil
	},
	DisableFlagsInUseLine: true,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	rootCmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default $"+config.EnvConfig+")")
	rootCmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory for extracted files (default './extracted')")
	rootCmd.Flags().CountVarP(&opts.verbosity, "verbose", "v", "Increase logging verbosity (-v debug, -vv trace)")
	rootCmd.Flags().BoolVar(&opts.digests, "digests", false, "Compute BLAKE3 digests of extracted files")
	rootCmd.Flags().BoolVar(&opts.preserveTimes, "preserve-times", false, "Apply recorded modification times to extracted files")
	rootCmd.Flags().StringVar(&opts.manifest, "manifest", "", "Write an extraction report to this path")
	rootCmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Bytes copied per read")
	rootCmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Extract into a destination that is not empty")
	rootCmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored log output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "udfextract: %s\n", err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the flags that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Extract.OutputDir = opts.outputDir
	}
	if flags.Changed("verbose") {
		switch {
		case opts.verbosity >= logging.LEVEL_TRACE:
			cfg.Log.Level = "trace"
		case opts.verbosity == logging.LEVEL_DEBUG:
			cfg.Log.Level = "debug"
		}
	}
	if flags.Changed("digests") {
		cfg.Extract.Digests = opts.digests
	}
	if flags.Changed("preserve-times") {
		cfg.Extract.PreserveTimes = opts.preserveTimes
	}
	if flags.Changed("manifest") {
		cfg.Extract.Manifest = opts.manifest
	}
	if flags.Changed("chunk-size") {
		cfg.Extract.ChunkSize = opts.chunkSize
	}
	if flags.Changed("force") {
		cfg.Extract.RequireBlank = !opts.force
	}
	if flags.Changed("no-color") {
		cfg.Log.Color = !opts.noColor
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prepareDestination creates the output directory when needed and refuses destinations that cannot
// receive the image.
func prepareDestination(cfg *config.Config, imagePath string, image *udf.UDF, logger *logging.Logger) error {
	info, err := os.Stat(imagePath)
	if err != nil {
		return err
	}
	out := cfg.Extract.OutputDir

	status, err := destination.Check(out, info.Size(), image.Root())
	if err != nil {
		return err
	}
	if status == destination.NotFound {
		if err := os.MkdirAll(out, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if status, err = destination.Check(out, info.Size(), image.Root()); err != nil {
			return err
		}
	}

	switch status {
	case destination.Ready:
		return nil
	case destination.NotBlank:
		if cfg.Extract.RequireBlank {
			return fmt.Errorf("%s: %s", out, status)
		}
		existing, err := destination.Overwrites(out, image.Root())
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			logger.Info("existing entries will be overwritten", "entries", strings.Join(existing, ", "))
		}
		return nil
	default:
		return fmt.Errorf("%s: %s", out, status)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, cfg.Verbosity(), cfg.Log.Color))

	// Progress updates are optional
	spinner, err := InitializeSpinner()
	if err != nil {
		logger.Info("progress updates are disabled", "reason", err.Error())
	}
	t := &tracker{spinner: spinner}

	image, err := udfkit.Open(imagePath,
		option.WithLogger(logger),
		option.WithChunkSize(cfg.Extract.ChunkSize),
		option.WithDigests(cfg.Extract.Digests),
		option.WithPreserveTimes(cfg.Extract.PreserveTimes),
		option.WithProgress(t.Overall()),
		option.WithExtractionProgress(t.PerFile()),
	)
	if err == nil {
		err = prepareDestination(cfg, imagePath, image, logger)
	}
	if err != nil {
		stopSpinner(spinner, false, fmt.Sprintf(" %v", err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := image.ExtractFiles(ctx, cfg.Extract.OutputDir, nil)
	if report != nil && cfg.Extract.Manifest != "" {
		if serr := report.Save(cfg.Extract.Manifest); serr != nil {
			logger.Error(serr, "failed to write manifest", "path", cfg.Extract.Manifest)
		}
	}

	switch {
	case err != nil:
		stopSpinner(spinner, false, fmt.Sprintf(" Failed to extract image: %v", err))
		return err
	case !report.Completed:
		stopSpinner(spinner, false, " Extraction cancelled")
		return context.Canceled
	default:
		stopSpinner(spinner, true, fmt.Sprintf(" %d files extracted to %s", report.Files, cfg.Extract.OutputDir))
		if len(report.Skipped) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d files were skipped\n", len(report.Skipped))
		}
		return nil
	}
}

// stopSpinner stops the spinner with message, or prints message when there is no spinner.
func stopSpinner(spinner *yacspin.Spinner, ok bool, message string) {
	if spinner == nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(message))
		return
	}
	if ok {
		spinner.StopMessage(message)
		_ = spinner.Stop()
		return
	}
	spinner.StopFailMessage(message)
	_ = spinner.StopFail()
}
