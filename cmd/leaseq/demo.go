package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/leaseq/internal/queue"
)

// demoSettle is the pause between filling the queue and reading it back.
var demoSettle = 1500 * time.Millisecond

func newDemoCommand(ctx *commandContext) *cobra.Command {
	var (
		items     int
		lease     int
		skipOneIn int
		admin     bool
		archive   bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Fill a queue, read it back with leases, and stop when it drains",
		Long: `Fill a string queue with items and read them back with a short lease.

Roughly one item in --skip-one-in is left unconfirmed, so its lease runs out
and the item is redelivered. Expect a timeout a little over a minute after
each skip with the default one-minute lease.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("items") {
				cfg.Demo.Items = items
			}
			if flags.Changed("lease") {
				cfg.Demo.LeaseMinutes = lease
			}
			if flags.Changed("skip-one-in") {
				cfg.Demo.SkipOneIn = skipOneIn
			}
			if flags.Changed("admin") {
				cfg.Admin.Enabled = admin
			}
			if flags.Changed("archive") {
				cfg.Archive.Enabled = archive
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := ctx.logger(cmd.ErrOrStderr())
			s, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Setting up demo queue")
			q, err := s.newQueue(cfg.Demo.QueueName)
			if err != nil {
				return err
			}
			s.start()

			w := newWorker(q, out, cfg.Demo.LeaseMinutes, cfg.Demo.SkipOneIn)

			sigCtx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()
			runCtx, stop := context.WithCancel(sigCtx)
			defer stop()
			q.OnComplete(stop)
			q.OnItemTimeout(func(it queue.Item[string]) {
				w.printf("Item %s has timed out and will be sent back out for processing!\n", it.ID)
			})

			fmt.Fprintln(out, "Filling demo queue with data.")
			start := time.Now()
			if err := w.fill(runCtx, cfg.Demo.Items); err != nil {
				return err
			}
			fmt.Fprintf(out, "Filled demo queue with %d items in %s\n", cfg.Demo.Items, time.Since(start))
			if cfg.Demo.Items == 0 {
				return nil
			}

			select {
			case <-time.After(demoSettle):
			case <-runCtx.Done():
				return runCtx.Err()
			}

			fmt.Fprintln(out, "Reading queue items back. This may take a while!")
			start = time.Now()
			if err := w.consume(runCtx); err != nil {
				return err
			}
			select {
			case err := <-s.serveErr:
				return fmt.Errorf("admin server: %w", err)
			default:
			}
			if q.Len()+q.LockedCount() > 0 {
				// Interrupted before the queue drained.
				return context.Canceled
			}
			w.printf("Read and confirmed all queue items in %s.\n", time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&items, "items", 0, "Number of items to add (default from demo.items)")
	cmd.Flags().IntVar(&lease, "lease", 0, "Lease length in minutes (default from demo.lease_minutes)")
	cmd.Flags().IntVar(&skipOneIn, "skip-one-in", 0, "Leave about one in N items unconfirmed; 0 never skips")
	cmd.Flags().BoolVar(&admin, "admin", false, "Serve the admin API while the demo runs")
	cmd.Flags().BoolVar(&archive, "archive", false, "Record snapshots to the archive while the demo runs")
	return cmd
}
