package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/siteforge/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the run-event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.EventsDSN == "" {
			return fmt.Errorf("no DATABASE_URL configured; the event log requires Postgres")
		}

		db, err := events.Open(cfg.EventsDSN)
		if err != nil {
			return fmt.Errorf("open events db: %w", err)
		}
		defer db.Close()

		evs, err := db.RecentRunEvents(taskID, limit)
		if err != nil {
			return err
		}
		for _, e := range evs {
			line := fmt.Sprintf("%s  %-12s r%d  %-24s %s",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.TaskID, e.Round, e.Event, e.Stage)
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			cmd.Println(line)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("task", "", "Filter by task id")
	eventsCmd.Flags().Int("limit", 50, "Maximum events to show")
}
