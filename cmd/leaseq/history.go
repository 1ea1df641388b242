package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/leaseq/internal/archive"
	"github.com/snehjoshi/leaseq/pkg/client"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		path       string
		limit      int
		snapshotID string
	)

	cmd := &cobra.Command{
		Use:   "history [queue]",
		Short: "List archived queue snapshots",
		Long: `Read the snapshot archive directly. Without arguments, list the queues that
have snapshots. With a queue name, list its snapshots newest first, or show
one snapshot's items with --id.

The archive file is locked while a demo or serve process records into it;
use "leaseq inspect" against the admin API in that case.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Archive.Path
			}
			store, err := archive.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case len(args) == 0:
				return listArchivedQueues(store, out)
			case snapshotID != "":
				return showSnapshot(store, args[0], snapshotID, out)
			default:
				return listSnapshots(store, args[0], limit, out)
			}
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Archive file (default archive.path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum snapshots to list; 0 lists all")
	cmd.Flags().StringVar(&snapshotID, "id", "", "Show the items of one snapshot")
	return cmd
}

func listArchivedQueues(store *archive.Store, out io.Writer) error {
	names, err := store.Queues()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No snapshots")
		return nil
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		recs, err := store.List(name, 1)
		if err != nil {
			return err
		}
		last := ""
		if len(recs) > 0 {
			last = recs[0].TakenAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{name, last})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Queue", "Last Snapshot"}, rows, nil))
	return nil
}

func listSnapshots(store *archive.Store, queueName string, limit int, out io.Writer) error {
	recs, err := store.List(queueName, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintf(out, "No snapshots for %q\n", queueName)
		return nil
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.ID,
			r.TakenAt.Local().Format(time.DateTime),
			r.Reason,
			strconv.Itoa(r.Stats.Ready),
			strconv.Itoa(r.Stats.Redelivery),
			strconv.Itoa(r.Stats.Locked),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Snapshot", "Taken", "Reason", "Ready", "Redelivery", "Locked"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}

func showSnapshot(store *archive.Store, queueName, snapshotID string, out io.Writer) error {
	rec, err := store.Get(queueName, snapshotID)
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("snapshot %s of %q not found", snapshotID, queueName)
	}
	if err != nil {
		return err
	}
	var d client.Dump
	if err := json.Unmarshal(rec.Dump, &d); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
	}
	fmt.Fprintf(out, "%s  %s  reason=%s\n", rec.ID, rec.TakenAt.Local().Format(time.DateTime), rec.Reason)
	rows := dumpRows(&d, nil)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue was empty")
		return nil
	}
	fmt.Fprintln(out, renderTable(out, []string{"Part", "Item", "Data"}, rows, nil))
	return nil
}
