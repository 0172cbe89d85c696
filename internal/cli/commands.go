package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-reservation/internal/bootstrap"
	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/service"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Long: `Apply every embedded migration not yet recorded in schema_migrations.
Concurrent runs are serialized by a database lock.

Example:
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/seats reservectl migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if err := bootstrap.Migrate(cmd.Context(), cfg); err != nil {
				return wrapExit(ExitFailure, "migrate", err)
			}
			log.Info("migrations applied", "driver", cfg.DBDriver)
			return opts.emit(cmd.OutOrStdout(), map[string]string{"driver": cfg.DBDriver, "status": "ok"},
				func() string { return "migrations applied (" + cfg.DBDriver + ")" })
		},
	}
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and print its report",
		Long: `Cancel bookings whose check-in or check-out window has passed and
record a TIMEOUT violation for each, exactly like one cycle of the server's
background sweeper.

Example:
  reservectl sweep --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := bootstrap.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return wrapExit(ExitFailure, "open storage", err)
			}
			defer closeStore()

			report, err := service.NewSweeper(store, clock.NewSystem(), service.WithSweepLogger(log)).SweepOnce(cmd.Context())
			if err != nil {
				return wrapExit(ExitFailure, "sweep", err)
			}
			return opts.emit(cmd.OutOrStdout(), report, func() string {
				return fmt.Sprintf("missed check-ins: %d\nmissed check-outs: %d\nskipped: %d\nfailed: %d",
					report.MissedCheckIns, report.MissedCheckOuts, report.Skipped, report.Failed)
			})
		},
	}
}

type availabilityFlags struct {
	seatID uint64
	from   string
	to     string
}

func newAvailabilityCommand(opts *RootOptions) *cobra.Command {
	var flags availabilityFlags
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print the free intervals of a seat",
		Long: `Print the free intervals of a seat between --from and --to (RFC 3339),
limited to the room's opening hours.

Example:
  reservectl availability --seat 12 --from 2025-06-02T00:00:00Z --to 2025-06-03T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, flags.from)
			if err != nil {
				return wrapExit(ExitCommandError, "--from", err)
			}
			to, err := time.Parse(time.RFC3339, flags.to)
			if err != nil {
				return wrapExit(ExitCommandError, "--to", err)
			}
			cfg, log, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := bootstrap.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return wrapExit(ExitFailure, "open storage", err)
			}
			defer closeStore()

			svc := service.NewBookingService(store, clock.NewSystem(), service.WithLocation(cfg.Location), service.WithLogger(log))
			free, err := svc.ComputeAvailability(cmd.Context(), flags.seatID, from, to)
			if err != nil {
				return wrapExit(ExitFailure, "availability", err)
			}
			return opts.emit(cmd.OutOrStdout(), free, func() string {
				if len(free) == 0 {
					return "no free time"
				}
				var b strings.Builder
				for i, iv := range free {
					if i > 0 {
						b.WriteByte('\n')
					}
					fmt.Fprintf(&b, "%s  %s  (%s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339), iv.Duration())
				}
				return b.String()
			})
		},
	}
	cmd.Flags().Uint64Var(&flags.seatID, "seat", 0, "seat id (required)")
	cmd.Flags().StringVar(&flags.from, "from", "", "window start, RFC 3339 (required)")
	cmd.Flags().StringVar(&flags.to, "to", "", "window end, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("seat")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
