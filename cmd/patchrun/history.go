package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/patchrun/patchrun/internal/history"
	"github.com/patchrun/patchrun/internal/models"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query past maintenance runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(historyLimit)
		if err != nil {
			return err
		}

		if historyJSON {
			return formatJSON(runs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tMODE\tOK\tSKIP\tFAIL\tRUNNER")
		for _, r := range runs {
			mode := "live"
			if r.DryRun {
				mode = "dry-run"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				mode,
				r.Succeeded,
				r.Skipped,
				r.Failed,
				r.RunnerHost,
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the outcomes of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("load run %s: %w", args[0], err)
		}

		if historyJSON {
			return formatJSON(run)
		}

		fmt.Printf("Run %s\n", run.ID)
		fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
		if run.DryRun {
			fmt.Println("Mode:     dry-run")
		}
		if run.Runner.Hostname != "" {
			fmt.Printf("Runner:   %s (%s)\n", run.Runner.Hostname, run.Runner.Platform)
		}
		if run.LogPath != "" {
			fmt.Printf("Run log:  %s\n", run.LogPath)
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HOST\tSTATUS\tREASON")
		for _, bucket := range [][]models.HostOutcome{run.Succeeded, run.Skipped, run.Failed} {
			for _, o := range bucket {
				fmt.Fprintf(w, "%s\t%s\t%s\n", o.Host, o.Status, o.Reason)
			}
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.PersistentFlags().BoolVarP(&historyJSON, "json", "j", false, "Output in JSON format")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of runs to list")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func openHistoryDB() (*history.DB, error) {
	path, err := homedir.Expand(historyDB)
	if err != nil {
		return nil, fmt.Errorf("resolve history db path: %w", err)
	}
	return history.NewDB(path)
}

func formatJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
