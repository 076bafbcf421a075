package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/survey"
)

const ReportFile = "brightspots-report.md"

// Report is everything the Markdown generator renders.
type Report struct {
	GeneratedAt  time.Time
	Summary      aggregator.Summary
	Rollups      map[survey.RatingField][]aggregator.ItemRollup
	CustomerTags []aggregator.TagCount
	TechTags     []aggregator.TagCount
	Companies    []aggregator.CompanyGroup
	Themes       []survey.Theme
	Assessments  map[string]map[string]survey.Assessment
}

type Generator struct {
	outputDir string
}

func NewGenerator(outputDir string) *Generator {
	return &Generator{
		outputDir: outputDir,
	}
}

// Generate writes the overview report plus one file per assessed company and
// returns the written paths.
func (g *Generator) Generate(report *Report) ([]string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var files []string

	filename, err := g.writeOverview(report)
	if err != nil {
		return nil, err
	}
	files = append(files, filename)

	if len(report.Assessments) == 0 {
		return files, nil
	}

	companyDir := filepath.Join(g.outputDir, "companies")
	if err := os.MkdirAll(companyDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create companies directory: %w", err)
	}

	companies := make([]string, 0, len(report.Assessments))
	for company := range report.Assessments {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	for _, company := range companies {
		filename, err := g.writeCompanyFile(companyDir, company, report.Assessments[company], report.Themes)
		if err != nil {
			return nil, err
		}
		files = append(files, filename)
	}

	return files, nil
}

func (g *Generator) writeOverview(report *Report) (string, error) {
	filename := filepath.Join(g.outputDir, ReportFile)

	var sb strings.Builder
	sb.WriteString("# Brightspots Survey Report\n\n")
	if !report.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("_Generated %s_\n\n", report.GeneratedAt.Format("2006-01-02 15:04")))
	}

	s := report.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Responses:** %d\n", s.TotalResponses))
	sb.WriteString(fmt.Sprintf("- **Companies:** %d\n", s.Companies))
	if s.HasRange {
		sb.WriteString(fmt.Sprintf("- **Period:** %s to %s\n", s.Start.Format("2006-01-02"), s.End.Format("2006-01-02")))
	}
	sb.WriteString("\n")

	for _, field := range survey.RatingFields() {
		items := report.Rollups[field]
		if len(items) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", survey.ValidRatingFields[field]))
		sb.WriteString("| # | Item | Score | Mentions |")
		for _, level := range survey.Levels() {
			sb.WriteString(fmt.Sprintf(" %s |", level.Label()))
		}
		sb.WriteString("\n|---|---|---|---|---|---|---|---|\n")
		for i, item := range items {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.2f | %d |", i+1, escapeCell(item.Name), item.WeightedScore, item.TotalMentions))
			for _, n := range item.InterestCounts {
				sb.WriteString(fmt.Sprintf(" %d |", n))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	writeTags(&sb, "Customer Theme Tags", report.CustomerTags)
	writeTags(&sb, "Emerging Tech Tags", report.TechTags)

	if len(report.Companies) > 0 {
		sb.WriteString("## Companies\n\n")
		for _, c := range report.Companies {
			sb.WriteString(fmt.Sprintf("- **%s** (%d)\n", c.Name, c.Count))
			for _, m := range c.Members {
				line := emptyFallback(m.Name, "Anonymous")
				if themes := strings.TrimSpace(m.Themes); themes != "" {
					line += ": " + truncate(themes, 120)
				}
				sb.WriteString(fmt.Sprintf("  - %s\n", line))
			}
		}
		sb.WriteString("\n")
	}

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return filename, nil
}

func writeTags(sb *strings.Builder, title string, tags []aggregator.TagCount) {
	if len(tags) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	parts := make([]string, 0, len(tags))
	for _, tc := range tags {
		parts = append(parts, fmt.Sprintf("`%s` (%d)", tc.Tag, tc.Count))
	}
	sb.WriteString(strings.Join(parts, " · "))
	sb.WriteString("\n\n")
}

func (g *Generator) writeCompanyFile(dir, company string, assessments map[string]survey.Assessment, themes []survey.Theme) (string, error) {
	filename := filepath.Join(dir, fmt.Sprintf("%s.md", sanitizeFilename(company)))

	names := make(map[string]string, len(themes))
	for _, th := range themes {
		names[th.ID] = th.Name
	}

	ids := make([]string, 0, len(assessments))
	for id := range assessments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", company))
	sb.WriteString("## Theme Assessments\n\n")
	for _, id := range ids {
		a := assessments[id]
		involvement := survey.ValidInvolvements[a.Involvement]
		sb.WriteString(fmt.Sprintf("### %s\n\n", emptyFallback(names[id], "Theme "+id)))
		sb.WriteString(fmt.Sprintf("- **Involvement:** %s\n", emptyFallback(involvement, "Not set")))
		if a.Timestamp != "" {
			sb.WriteString(fmt.Sprintf("- **Updated:** %s\n", a.Timestamp))
		}
		if d := strings.TrimSpace(a.Description); d != "" {
			sb.WriteString(fmt.Sprintf("\n%s\n", d))
		}
		sb.WriteString("\n")
	}

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write company file: %w", err)
	}

	return filename, nil
}

func emptyFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeFilename(s string) string {
	result := unsafeFilename.ReplaceAllString(s, "-")
	result = strings.Trim(result, "-")
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "unnamed"
	}
	return strings.ToLower(result)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
