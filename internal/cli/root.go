package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Config  string // YAML or CUE settings file
	Journal string // SQLite job ledger, disabled when empty
	Runtime string
	Size    string
	Nodes   int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the wmlbridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wmlbridge",
		Short: "Run optimization models on Watson Machine Learning",
		Long: `Send exported CPLEX and CP Optimizer models to the Decision Optimization
service of Watson Machine Learning and manage what it leaves behind:
jobs, deployments, models and spaces.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "settings file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "SQLite file recording submitted jobs")
	cmd.PersistentFlags().StringVar(&opts.Runtime, "runtime", "", "Decision Optimization runtime (default 20.1)")
	cmd.PersistentFlags().StringVar(&opts.Size, "size", "M", "deployment T-shirt size (S|M|XL)")
	cmd.PersistentFlags().IntVar(&opts.Nodes, "nodes", 1, "deployment node count")

	cmd.AddCommand(NewSolveCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewDeploymentsCommand(opts))
	cmd.AddCommand(NewSpaceCommand(opts))
	cmd.AddCommand(NewBrowseCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger writes structured logs to w, at Debug level when verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
