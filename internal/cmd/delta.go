package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/survey"
)

var deltaShowDiff bool

var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Pull or push a record's delta file",
	Long: `Work with the per-record delta files kept under
<deltas-folder>/conclusion-assets/brightspots-deltas/. Both subcommands need
--deltas-folder and --uuid (or their config equivalents).`,
}

var deltaPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch a record's delta and show what it changes",
	RunE:  runDeltaPull,
}

var deltaPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Write a record's current state to its delta file",
	RunE:  runDeltaPush,
}

func init() {
	rootCmd.AddCommand(deltaCmd)
	deltaCmd.AddCommand(deltaPullCmd)
	deltaCmd.AddCommand(deltaPushCmd)

	deltaPullCmd.Flags().BoolVar(&deltaShowDiff, "diff", true, "Print a unified diff of the record before and after the merge")
}

// unscopedTarget takes the delta scope off the config so the session loads
// the records untouched, and returns it.
func unscopedTarget() (string, string, error) {
	folder, id := cfg.DeltasFolder, cfg.RecordID
	if folder == "" || id == "" {
		return "", "", fmt.Errorf("--deltas-folder and --uuid are required")
	}
	cfg.DeltasFolder, cfg.RecordID = "", ""
	return folder, id, nil
}

func runDeltaPull(cmd *cobra.Command, args []string) error {
	folder, id, err := unscopedTarget()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	before, ok := s.Store.FindByID(id)
	if !ok {
		return fmt.Errorf("record %q: %w", id, survey.ErrNotFound)
	}

	result := s.Sync.Pull(ctx, folder, id, s.Store)
	fmt.Printf("Delta %s: %s\n", result.Location, result.Outcome)
	if result.Err != nil {
		return result.Err
	}
	if result.Outcome != delta.OutcomeApplied || !deltaShowDiff {
		return nil
	}

	after, _ := s.Store.FindByID(id)
	text, err := delta.Diff(s.Store.Fields(), before, after)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("No changes.")
		return nil
	}
	fmt.Print(text)
	return nil
}

func runDeltaPush(cmd *cobra.Command, args []string) error {
	folder, id, err := unscopedTarget()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	push, err := s.PushRecord(ctx, folder, id)
	if err != nil {
		return err
	}
	if err := push.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", delta.LocalOnlyWarning, err)
	}
	fmt.Printf("Pushed record %s to %s\n", id, push.Location)
	return nil
}
