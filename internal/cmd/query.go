package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/strrl/brightspots/internal/db"
	"github.com/strrl/brightspots/internal/survey"
)

var (
	querySQL    string
	queryScores string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run SQL over the survey responses",
	Long: `Load the survey into an in-memory DuckDB database and run a query.

Tables:
  records(id, company, respondent, role, start_time, customer_themes, emerging_tech)
  responses(record_id, company, field, item, level, weight)
  tags(record_id, company, domain, tag)`,
	Example: `  brightspots query --sql "SELECT item, AVG(weight) FROM responses GROUP BY item"`,
	RunE:    runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&querySQL, "sql", "s", "", "SQL statement to run")
	queryCmd.Flags().StringVar(&queryScores, "scores", "", "Print item scores for a rating field (challenges, techConcepts, productsVendors)")
	queryCmd.MarkFlagsOneRequired("sql", "scores")
	queryCmd.MarkFlagsMutuallyExclusive("sql", "scores")
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	loc, err := cfg.GetLocation()
	if err != nil {
		return err
	}

	w, err := db.Open()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.LoadRecords(cmd.Context(), s.Store.Records(), loc); err != nil {
		return err
	}

	if queryScores != "" {
		return printScores(cmd.Context(), w, survey.RatingField(queryScores))
	}

	result, err := w.Query(cmd.Context(), querySQL)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("(%d rows)\n", len(result.Rows))
	return nil
}

func printScores(ctx context.Context, w *db.Warehouse, field survey.RatingField) error {
	if !field.IsValid() {
		return fmt.Errorf("unknown rating field: %s", field)
	}
	scores, err := w.ItemScores(ctx, field)
	if err != nil {
		return err
	}

	fmt.Printf("%s:\n", survey.ValidRatingFields[field])
	for i, s := range scores {
		fmt.Printf("  %2d. %-40s %.2f (%d mentions)\n", i+1, s.Item, s.WeightedScore, s.Mentions)
	}
	return nil
}
