package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/garage-inventory/jobs"
)

type migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

type enqueuer interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	Close() error
}

type ledgerRunner interface {
	Run(ctx context.Context, partIDs []int64) (jobs.LedgerSummary, error)
}

// runtime supplies the command tree with its backends.
type runtime struct {
	out      io.Writer
	migrator func() (migrator, error)
	queue    func() (enqueuer, error)
	ledger   func(ctx context.Context) (ledgerRunner, func(), error)
	seed     func(ctx context.Context) (seedTargets, func(), error)
}

var errLedgerBroken = errors.New("ledger verification failed")

func newRootCmd(rt runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Operator tools for the garage parts inventory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(rt.out)
	root.AddCommand(newMigrateCmd(rt), newJobsCmd(rt), newLedgerCmd(rt), newSeedCmd(rt))
	return root
}

func newMigrateCmd(rt runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	withMigrator := func(fn func(m migrator) error) error {
		m, err := rt.migrator()
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				return printVersion(cmd.OutOrStdout(), m)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(w io.Writer, m migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(w, "schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(w, "schema version %d\n", v)
	return nil
}

func newJobsCmd(rt runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Interact with the background job queue"}
	trigger := &cobra.Command{
		Use:       "trigger <name>",
		Short:     "Enqueue a job with its default payload",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskAlertSweep, jobs.TaskLedgerVerify},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.queue()
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", args[0], info.ID, info.Queue)
			return nil
		},
	}
	cmd.AddCommand(trigger)
	return cmd
}

func newLedgerCmd(rt runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect the batch ledger"}
	verify := &cobra.Command{
		Use:   "verify [partId...]",
		Short: "Verify transaction chains against batch totals; all active parts when none given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid part id %q", arg)
				}
				ids = append(ids, id)
			}
			runner, closeFn, err := rt.ledger(cmd.Context())
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			summary, err := runner.Run(cmd.Context(), ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, report := range summary.Broken {
				fmt.Fprintf(out, "part %d: batches %s, chain %s, %d break(s)\n",
					report.PartID, report.BatchTotal, report.ChainBalance, len(report.Breaks))
				for _, b := range report.Breaks {
					fmt.Fprintf(out, "  transaction %d: %s (expected %s, got %s)\n", b.TransactionID, b.Reason, b.Expected, b.Actual)
				}
			}
			fmt.Fprintf(out, "verified %d part(s), %d broken\n", summary.Parts, len(summary.Broken))
			if len(summary.Broken) > 0 {
				return errLedgerBroken
			}
			return nil
		},
	}
	cmd.AddCommand(verify)
	return cmd
}
