package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"cam-chunker/database"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded extraction runs",
	Long:  `List extraction runs recorded in the run history database, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		if _, err := os.Stat(cfg.DatabasePath); os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}
		db, err := database.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer db.Close()

		var runs []database.Run
		if status != "" {
			runs, err = db.GetRunsByStatus(database.RunStatus(status), limit, 0)
		} else {
			runs, err = db.ListRuns(limit, 0)
		}
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("STARTED")+"\t"+headerStyle.Render("CAMERA")+"\t"+
			headerStyle.Render("WINDOW")+"\t"+headerStyle.Render("CHUNKS")+"\t"+headerStyle.Render("STATUS")+"\t"+headerStyle.Render("TRIGGER"))
		for _, run := range runs {
			window := fmt.Sprintf("%s %s-%s", run.Date, run.WindowStart.Format("15:04"), run.WindowEnd.Format("15:04"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				shortID(run.ID),
				run.CreatedAt.Local().Format("2006-01-02 15:04"),
				run.Camera,
				window,
				run.ChunksWritten, run.ChunksPlanned,
				statusStyle(run.Status).Render(string(run.Status)),
				run.Trigger,
			)
			if run.ErrorMessage != "" {
				fmt.Fprintf(w, "\t%s\t\t\t\t\t\n", dimStyle.Render(run.ErrorMessage))
			}
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	historyCmd.Flags().String("status", "", "only show runs with this status (processing, completed, partial, failed)")
	rootCmd.AddCommand(historyCmd)
}
