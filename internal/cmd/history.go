package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/brightspots/internal/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent edits from the journal",
	Long:  `Print the most recent saves and delta pushes recorded in journal.path.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of events to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal not configured (set journal.path or BRIGHTSPOTS_JOURNAL)")
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	for _, ev := range events {
		fmt.Printf("%s  %-16s %-24s record=%s\n", ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.Kind, ev.Company, ev.RecordID)
		if len(ev.Payload) > 0 && string(ev.Payload) != "null" {
			fmt.Printf("    %s\n", truncate(string(ev.Payload), 160))
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
