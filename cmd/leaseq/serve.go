package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/leaseq/internal/queue"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		every time.Duration
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API over a continuous demo workload",
		Long: `Serve the admin API and archive over a demo queue that never drains for
long: one item is produced every --every and consumed as in "leaseq demo".
Runs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg.Admin.Enabled = true
			if every <= 0 {
				return fmt.Errorf("--every must be positive")
			}

			logger := ctx.logger(cmd.ErrOrStderr())
			s, err := openStack(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			q, err := s.newQueue(cfg.Demo.QueueName)
			if err != nil {
				return err
			}
			s.start()

			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			w := newWorker(q, out, cfg.Demo.LeaseMinutes, cfg.Demo.SkipOneIn)
			q.OnItemTimeout(func(it queue.Item[string]) {
				logger.Info("item timed out", "queue", q.Name(), "item_id", it.ID)
			})

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("leaseq ready", "queue", q.Name(), "queue_id", q.ID(), "admin", s.server.Addr())

			runCtx, cancel := context.WithCancel(sigCtx)
			defer cancel()

			// Any failure stops the whole workload.
			failed := make(chan error, 1)
			fail := func(err error) {
				if err == nil {
					return
				}
				select {
				case failed <- err:
				default:
				}
				cancel()
			}

			var wg sync.WaitGroup
			wg.Add(3)
			go func() { defer wg.Done(); fail(stopped(w.fill(runCtx, cfg.Demo.Items))) }()
			go func() { defer wg.Done(); fail(w.produce(runCtx, every)) }()
			go func() {
				defer wg.Done()
				select {
				case err := <-s.serveErr:
					fail(fmt.Errorf("admin server: %w", err))
				case <-runCtx.Done():
				}
			}()

			fail(w.consume(runCtx))
			cancel()
			wg.Wait()

			select {
			case err = <-failed:
			default:
			}
			logger.Info("shutting down", "queue", q.Name())
			return err
		},
	}

	cmd.Flags().DurationVar(&every, "every", 2*time.Second, "Interval between produced items")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print per-item progress")
	return cmd
}
