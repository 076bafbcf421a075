package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/strrl/brightspots/internal/survey"
)

// Source exposes a consistent snapshot of the records to aggregate.
type Source interface {
	View(fn func(records []*survey.Record))
}

// Records adapts a plain slice to Source.
type Records []*survey.Record

func (r Records) View(fn func(records []*survey.Record)) {
	fn(r)
}

type Config struct {
	Location       *time.Location
	AnonymousName  string
	UnknownCompany string
	TagCloudMaxLen int
	TagCloudLimit  int
}

func DefaultConfig() Config {
	return Config{
		Location:       time.Local,
		AnonymousName:  "Anonymous",
		UnknownCompany: "Unknown Company",
		TagCloudMaxLen: 15,
		TagCloudLimit:  50,
	}
}

// Aggregator derives read-only rollups from a record source. None of its
// methods mutate records or return errors; ragged input is treated as absent.
type Aggregator struct {
	config Config
	source Source
}

func NewAggregator(cfg Config, source Source) *Aggregator {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.AnonymousName == "" {
		cfg.AnonymousName = def.AnonymousName
	}
	if cfg.UnknownCompany == "" {
		cfg.UnknownCompany = def.UnknownCompany
	}
	if cfg.TagCloudMaxLen == 0 {
		cfg.TagCloudMaxLen = def.TagCloudMaxLen
	}
	if cfg.TagCloudLimit == 0 {
		cfg.TagCloudLimit = def.TagCloudLimit
	}
	return &Aggregator{
		config: cfg,
		source: source,
	}
}

type Summary struct {
	TotalResponses int       `json:"totalResponses"`
	Companies      int       `json:"companies"`
	Start          time.Time `json:"startDate"`
	End            time.Time `json:"endDate"`
	HasRange       bool      `json:"hasRange"`
}

func (a *Aggregator) Summary() Summary {
	var summary Summary
	a.source.View(func(records []*survey.Record) {
		summary.TotalResponses = len(records)
		companies := make(map[string]struct{})

		for _, rec := range records {
			if strings.TrimSpace(rec.Company) != "" {
				companies[rec.Company] = struct{}{}
			}

			ts, ok := ParseStartTime(rec.StartTime, a.config.Location)
			if !ok {
				continue
			}
			if !summary.HasRange || ts.Before(summary.Start) {
				summary.Start = ts
			}
			if !summary.HasRange || ts.After(summary.End) {
				summary.End = ts
			}
			summary.HasRange = true
		}
		summary.Companies = len(companies)
	})
	return summary
}

type Respondent struct {
	Company string `json:"company"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

type ItemRollup struct {
	Name           string           `json:"name"`
	InterestCounts LevelCounts      `json:"interestCounts"`
	Respondents    LevelRespondents `json:"respondents"`
	TotalMentions  int              `json:"totalMentions"`
	WeightedScore  float64          `json:"weightedScore"`
}

// RespondentsAt returns the respondents that answered level.
func (r ItemRollup) RespondentsAt(level survey.Level) []Respondent {
	if level < 0 || int(level) >= survey.NumLevels {
		return nil
	}
	return r.Respondents[level]
}

// Rollup returns one entry per distinct item of field, sorted by weighted
// score descending. Equal scores keep first-encounter order.
func (a *Aggregator) Rollup(field survey.RatingField) []ItemRollup {
	if !field.IsValid() {
		return nil
	}

	var items []*ItemRollup
	index := make(map[string]*ItemRollup)

	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			rec.Ratings(field).Each(func(name, value string) {
				item, ok := index[name]
				if !ok {
					item = &ItemRollup{Name: name}
					index[name] = item
					items = append(items, item)
				}

				level, ok := survey.ParseLevel(value)
				if !ok {
					return
				}
				item.InterestCounts.Add(level)
				item.Respondents[level] = append(item.Respondents[level], Respondent{
					Company: a.companyOrUnknown(rec.Company),
					Name:    rec.RespondentName,
					Role:    rec.Role,
				})
			})
		}
	})

	result := make([]ItemRollup, 0, len(items))
	for _, item := range items {
		item.TotalMentions = item.InterestCounts.Total()
		item.WeightedScore = WeightedScore(item.InterestCounts)
		result = append(result, *item)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].WeightedScore > result[j].WeightedScore
	})

	return result
}

// Top returns the first n entries of a rollup, or all of them when n <= 0.
func Top(items []ItemRollup, n int) []ItemRollup {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

type Member struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Themes       string `json:"themes"`
	EmergingTech string `json:"emergingTech"`
}

type CompanyGroup struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Members []Member `json:"respondents"`
}

// Companies groups records by non-blank company, largest group first.
func (a *Aggregator) Companies() []CompanyGroup {
	var groups []*CompanyGroup
	index := make(map[string]*CompanyGroup)

	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			if strings.TrimSpace(rec.Company) == "" {
				continue
			}
			group, ok := index[rec.Company]
			if !ok {
				group = &CompanyGroup{Name: rec.Company}
				index[rec.Company] = group
				groups = append(groups, group)
			}
			group.Count++
			group.Members = append(group.Members, Member{
				ID:           rec.ID,
				Name:         rec.RespondentName,
				Themes:       rec.CustomerThemesText,
				EmergingTech: rec.EmergingTechText,
			})
		}
	})

	result := make([]CompanyGroup, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

func (a *Aggregator) companyOrUnknown(company string) string {
	if company == "" {
		return a.config.UnknownCompany
	}
	return company
}

func (a *Aggregator) nameOrAnonymous(name string) string {
	if name == "" {
		return a.config.AnonymousName
	}
	return name
}
