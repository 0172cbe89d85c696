// Package cli implements reservectl, the operator command line for the
// seat reservation service.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-reservation/internal/config"
)

// Exit codes for reservectl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed
	ExitCommandError = 2 // bad flags or configuration
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func wrapExit(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from an error, ExitFailure by default.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

var validFormats = []string{"text", "json"}

// RootOptions holds global flags and the configuration source.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig reads configuration; tests replace it.
	LoadConfig func() (config.Config, error)
}

func defaultLoadConfig() (config.Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return config.FromEnv()
}

// NewRootCommand creates the reservectl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: defaultLoadConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservectl",
		Short: "Operate the seat reservation service",
		Long: `reservectl runs maintenance tasks against the configured storage:
schema migrations, a single reconciliation sweep and seat availability
lookups. It reads the same environment (and .env file) as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return wrapExit(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newAvailabilityCommand(opts))
	return cmd
}

// setup loads configuration and builds the command logger on stderr.
func (o *RootOptions) setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return config.Config{}, nil, wrapExit(ExitCommandError, "load config", err)
	}
	if o.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, log, nil
}

// emit writes v as indented JSON, or text() in text mode.
func (o *RootOptions) emit(w io.Writer, v any, text func() string) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
