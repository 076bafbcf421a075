package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/output"
	"github.com/strrl/brightspots/internal/survey"
)

var (
	analyzeOut string
	analyzeTop int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate the survey and write a Markdown report",
	Long: `Load the survey records and theme catalog, print the summary and the
highest scoring items per rating field, and write brightspots-report.md plus one
file per assessed company into the output directory.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "report", "Output directory for the Markdown report")
	analyzeCmd.Flags().IntVarP(&analyzeTop, "top", "n", 10, "Number of items per rating field (0 = all)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	agg := s.Aggregator
	summary := agg.Summary()

	fmt.Printf("Loaded %d responses from %d companies\n", summary.TotalResponses, summary.Companies)
	if summary.HasRange {
		fmt.Printf("Responses from %s to %s\n", summary.Start.Format("2006-01-02"), summary.End.Format("2006-01-02"))
	}
	stats := s.Stats()
	if len(stats.Migrated) > 0 {
		fmt.Printf("Migrated legacy assessments for %d companies\n", len(stats.Migrated))
	}
	if stats.DeltaPulled {
		fmt.Printf("Delta for record %s: %s\n", cfg.RecordID, stats.DeltaStatus)
	}

	rollups := make(map[survey.RatingField][]aggregator.ItemRollup)
	for _, field := range survey.RatingFields() {
		items := aggregator.Top(agg.Rollup(field), analyzeTop)
		rollups[field] = items

		fmt.Printf("\n%s:\n", survey.ValidRatingFields[field])
		if len(items) == 0 {
			fmt.Println("  (no answers)")
		}
		for i, item := range items {
			fmt.Printf("  %2d. %-40s %.2f (%d mentions)\n", i+1, item.Name, item.WeightedScore, item.TotalMentions)
		}
	}

	report := &output.Report{
		GeneratedAt:  time.Now(),
		Summary:      summary,
		Rollups:      rollups,
		CustomerTags: agg.TagCloud(survey.DomainCustomerTheme),
		TechTags:     agg.TagCloud(survey.DomainTech),
		Companies:    agg.Companies(),
		Themes:       s.Store.Themes(),
		Assessments:  s.Themes.All(),
	}

	gen := output.NewGenerator(analyzeOut)
	files, err := gen.Generate(report)
	if err != nil {
		return fmt.Errorf("failed to generate output: %w", err)
	}

	fmt.Printf("\nGenerated %d report files in %s/\n", len(files), analyzeOut)
	for _, f := range files {
		fmt.Printf("  - %s\n", f)
	}

	return nil
}
