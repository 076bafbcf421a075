package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/survey"
)

// Warehouse is an in-memory DuckDB copy of the survey responses for ad-hoc SQL.
type Warehouse struct {
	db *sql.DB
}

func Open() (*Warehouse, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	w := &Warehouse{db: db}
	if err := w.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id VARCHAR,
			company VARCHAR,
			respondent VARCHAR,
			role VARCHAR,
			start_time TIMESTAMP,
			customer_themes VARCHAR,
			emerging_tech VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			record_id VARCHAR,
			company VARCHAR,
			field VARCHAR,
			item VARCHAR,
			level VARCHAR,
			weight INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			record_id VARCHAR,
			company VARCHAR,
			domain VARCHAR,
			tag VARCHAR
		)`,
	}
	for _, stmt := range statements {
		if _, err := w.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// LoadRecords replaces the warehouse contents with recs. Only answers on
// the interest scale become response rows.
func (w *Warehouse) LoadRecords(ctx context.Context, recs []*survey.Record, loc *time.Location) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "responses", "tags"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, rec := range recs {
		var start any
		if ts, ok := aggregator.ParseStartTime(rec.StartTime, loc); ok {
			start = ts
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO records VALUES ($1, $2, $3, $4, $5, $6, $7)",
			rec.ID, rec.Company, rec.RespondentName, rec.Role, start,
			rec.CustomerThemesText, rec.EmergingTechText,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}

		for _, field := range survey.RatingFields() {
			var insertErr error
			rec.Ratings(field).Each(func(item, value string) {
				level, ok := survey.ParseLevel(value)
				if !ok || insertErr != nil {
					return
				}
				_, insertErr = tx.ExecContext(ctx,
					"INSERT INTO responses VALUES ($1, $2, $3, $4, $5, $6)",
					rec.ID, rec.Company, string(field), item, level.Label(), level.Weight(),
				)
			})
			if insertErr != nil {
				return fmt.Errorf("failed to insert responses for %s: %w", rec.ID, insertErr)
			}
		}

		for _, domain := range []survey.Domain{survey.DomainCustomerTheme, survey.DomainTech} {
			for _, tag := range aggregator.EffectiveTags(rec, domain) {
				if strings.TrimSpace(tag) == "" {
					continue
				}
				_, err := tx.ExecContext(ctx,
					"INSERT INTO tags VALUES ($1, $2, $3, $4)",
					rec.ID, rec.Company, string(domain), tag,
				)
				if err != nil {
					return fmt.Errorf("failed to insert tag for %s: %w", rec.ID, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

type Result struct {
	Columns []string
	Rows    [][]string
}

// Query runs an arbitrary statement and renders every value as text.
func (w *Warehouse) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return result, nil
}

type ItemScore struct {
	Item          string
	Mentions      int
	WeightedScore float64
}

// ItemScores ranks the items of field by mean weight, as the aggregator does.
func (w *Warehouse) ItemScores(ctx context.Context, field survey.RatingField) ([]ItemScore, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT item, COUNT(*) AS mentions, AVG(weight) AS score
		FROM responses
		WHERE field = $1
		GROUP BY item
		ORDER BY score DESC, item ASC
	`, string(field))
	if err != nil {
		return nil, fmt.Errorf("failed to query item scores: %w", err)
	}
	defer rows.Close()

	var scores []ItemScore
	for rows.Next() {
		var s ItemScore
		if err := rows.Scan(&s.Item, &s.Mentions, &s.WeightedScore); err != nil {
			return nil, fmt.Errorf("failed to scan item score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return scores, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04")
	case float64:
		return fmt.Sprintf("%.2f", val)
	default:
		return fmt.Sprint(val)
	}
}
