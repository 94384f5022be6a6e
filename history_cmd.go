package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"qpath/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded training runs",
	Long: `Display the most recent training runs, newest first.

Examples:
  qpath history
  qpath history --limit 5`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", storage.DEFAULT_LIMIT, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []storage.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	fmt.Fprintf(w, "  %-4s  %-16s  %-5s  %-6s  %-20s  %-8s  %-5s  %-5s  %-5s  %-6s  %s\n",
		"ID", "Date", "Size", "Hazard", "Seed", "Episodes", "Alpha", "Gamma", "Eps", "Steps", "Duration")
	for _, run := range runs {
		steps := "-"
		if run.PathSteps >= 0 {
			steps = fmt.Sprint(run.PathSteps)
		}
		fmt.Fprintf(w, "  %-4d  %-16s  %-5d  %-6.2f  %-20d  %-8d  %-5.2f  %-5.2f  %-5.2f  %-6s  %s\n",
			run.ID,
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.Size,
			run.HazardProbability,
			run.Seed,
			run.Episodes,
			run.Alpha,
			run.Gamma,
			run.Epsilon,
			steps,
			run.Duration.Round(time.Millisecond),
		)
	}
}
