package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/playlistfill/internal/history"
	"github.com/v0xg/playlistfill/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show the tracks of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}
			return listRuns(cmd, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}

func listRuns(cmd *cobra.Command, store *history.Store, limit int) error {
	out := cmd.OutOrStdout()
	runs, err := store.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, ui.Muted("No runs yet."))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Target,
			runStatus(r),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.ErrorCount),
		})
	}
	fmt.Fprintln(out, ui.Table([]string{"ID", "STARTED", "PLAYLIST", "STATUS", "PROCESSED", "ERRORS"}, rows))
	return nil
}

func showRun(cmd *cobra.Command, store *history.Store, id string) error {
	out := cmd.OutOrStdout()
	r, err := store.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	items, err := store.Items(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, ui.Title(fmt.Sprintf("Run %s → '%s'", r.ID, r.Target)))
	if r.URL != "" {
		fmt.Fprintln(out, ui.Muted(r.URL))
	}
	fmt.Fprintf(out, "Status: %s, processed %d, errors %d\n", runStatus(r), r.Processed, r.ErrorCount)
	if r.Message != "" {
		fmt.Fprintln(out, ui.Err(r.Message))
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{strconv.Itoa(it.Seq), it.Outcome, it.Identity})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, ui.Table([]string{"#", "OUTCOME", "TRACK"}, rows))
	}
	return nil
}

func runStatus(r history.RunRecord) string {
	switch {
	case !r.Finished():
		return ui.Warn("interrupted")
	case r.Success != nil && *r.Success && r.DryRun:
		return ui.OK("dry run")
	case r.Success != nil && *r.Success:
		return ui.OK("done")
	default:
		return ui.Err("failed")
	}
}
