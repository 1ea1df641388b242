package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/leaseq/pkg/client"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var (
		addr   string
		apiKey string
		part   string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [queue]",
		Short: "Show queues and their contents from a running admin server",
		Long: `Without arguments, list every queue with its counters. With a queue name,
show its counters and the items held in each container. --follow streams
timeout and completion notifications until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = "http://" + cfg.Admin.Addr()
			}
			if apiKey == "" {
				apiKey = cfg.Auth.APIKey
			}
			c := client.New(addr, client.WithAPIKey(apiKey))
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if follow {
					return fmt.Errorf("--follow needs a queue name")
				}
				return inspectAll(cmd.Context(), c, out)
			}

			name := args[0]
			if follow {
				sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return followQueue(sigCtx, c, name, out)
			}
			return inspectQueue(cmd.Context(), c, name, client.Part(part), out)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Admin server base URL (default http://<admin.host>:<admin.port>)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default auth.api_key)")
	cmd.Flags().StringVar(&part, "part", "", "Show a single container: main, timeout or locks")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream notifications for the queue")
	return cmd
}

var statsHeaders = []string{"Name", "ID", "Ready", "Redelivery", "Locked", "Max Lease", "Sweep"}

var statsAligns = []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}

func statsRow(s client.QueueStats) []string {
	name := s.Name
	if s.Closed {
		name += " (closed)"
	}
	return []string{
		name,
		s.ID,
		strconv.Itoa(s.Ready),
		strconv.Itoa(s.Redelivery),
		strconv.Itoa(s.Locked),
		fmt.Sprintf("%dm", s.MaxLeaseMinutes),
		fmt.Sprintf("%ds", s.SweepIntervalSeconds),
	}
}

func inspectAll(ctx context.Context, c *client.Client, out io.Writer) error {
	queues, err := c.ListQueues(ctx)
	if err != nil {
		return err
	}
	if len(queues) == 0 {
		fmt.Fprintln(out, "No queues")
		return nil
	}
	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		rows = append(rows, statsRow(q))
	}
	fmt.Fprintln(out, renderTable(out, statsHeaders, rows, statsAligns))
	return nil
}

func inspectQueue(ctx context.Context, c *client.Client, name string, part client.Part, out io.Writer) error {
	stats, err := c.Queue(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderTable(out, statsHeaders, [][]string{statsRow(*stats)}, statsAligns))

	var rows [][]string
	if part != "" {
		items, err := c.DumpPart(ctx, name, part)
		if err != nil {
			return err
		}
		rows = itemRows(string(part), items, rows)
	} else {
		d, err := c.Dump(ctx, name)
		if err != nil {
			return err
		}
		rows = dumpRows(d, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	fmt.Fprintln(out, renderTable(out, []string{"Part", "Item", "Data"}, rows, nil))
	return nil
}

func dumpRows(d *client.Dump, rows [][]string) [][]string {
	rows = itemRows(string(client.PartMain), d.MainQueue, rows)
	rows = itemRows(string(client.PartTimeout), d.TimeoutQueue, rows)
	return itemRows(string(client.PartLocks), d.LockList, rows)
}

func itemRows(part string, items []client.Item, rows [][]string) [][]string {
	for _, it := range items {
		rows = append(rows, []string{part, it.ID, truncate(string(it.Data), 60)})
	}
	return rows
}

func followQueue(ctx context.Context, c *client.Client, name string, out io.Writer) error {
	events, err := c.Events(ctx, name)
	if err != nil {
		return err
	}
	for e := range events {
		fmt.Fprintln(out, formatEvent(e))
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("event stream for %q ended", name)
}

func formatEvent(e client.Event) string {
	at := e.At.Local().Format(time.TimeOnly)
	switch e.Type {
	case "stats":
		if e.Stats == nil {
			return at + " stats"
		}
		return fmt.Sprintf("%s stats ready=%d redelivery=%d locked=%d",
			at, e.Stats.Ready, e.Stats.Redelivery, e.Stats.Locked)
	case "timeout":
		return fmt.Sprintf("%s timeout item=%s", at, e.ItemID)
	default:
		return strings.TrimSpace(at + " " + e.Type + " " + e.ItemID)
	}
}
