package themes

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/store"
	"github.com/strrl/brightspots/internal/survey"
)

// Manager keeps company theme assessments on each company's primary record.
type Manager struct {
	store    *store.Store
	notifier delta.Notifier
	logger   *zap.Logger
}

func NewManager(s *store.Store, notifier delta.Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    s,
		notifier: notifier,
		logger:   logger,
	}
}

type MigrationReport struct {
	Migrated []string
	Skipped  []string
}

// MigrateLegacy moves the global company -> theme map onto primary records,
// overlaying entries per theme id. Companies without a record are skipped.
func (m *Manager) MigrateLegacy(legacy survey.LegacyAssessments) MigrationReport {
	var report MigrationReport

	companies := make([]string, 0, len(legacy))
	for company := range legacy {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	for _, company := range companies {
		entries := legacy[company]
		_, err := m.store.UpdatePrimary(company, func(rec *survey.Record) error {
			if rec.ThemeAssessments == nil {
				rec.ThemeAssessments = make(map[string]survey.Assessment, len(entries))
			}
			for id, a := range entries {
				rec.ThemeAssessments[id] = a
			}
			return nil
		})
		if err != nil {
			m.logger.Warn("skipping legacy assessments", zap.String("company", company), zap.Error(err))
			report.Skipped = append(report.Skipped, company)
			continue
		}
		m.logger.Info("migrated legacy assessments", zap.String("company", company), zap.Int("themes", len(entries)))
		report.Migrated = append(report.Migrated, company)
	}

	return report
}

// Get returns the company's assessments, empty when it has none.
func (m *Manager) Get(company string) map[string]survey.Assessment {
	rec, ok := m.store.Primary(company)
	if !ok || rec.ThemeAssessments == nil {
		return map[string]survey.Assessment{}
	}
	return rec.ThemeAssessments
}

// All collects assessments from every record with a company and at least
// one assessment. Later records win for a repeated company.
func (m *Manager) All() map[string]map[string]survey.Assessment {
	all := make(map[string]map[string]survey.Assessment)
	m.store.View(func(records []*survey.Record) {
		for _, rec := range records {
			if strings.TrimSpace(rec.Company) == "" || len(rec.ThemeAssessments) == 0 {
				continue
			}
			all[rec.Company] = survey.CloneAssessments(rec.ThemeAssessments)
		}
	})
	return all
}

// Save replaces the company's assessments wholesale with a copy of
// assessments. Timestamps are stored as given. The returned push is nil
// unless the session is scoped to the saved record.
func (m *Manager) Save(ctx context.Context, company string, assessments map[string]survey.Assessment) (*delta.Push, error) {
	replacement := survey.CloneAssessments(assessments)
	if replacement == nil {
		replacement = map[string]survey.Assessment{}
	}
	return m.update(ctx, company, func(rec *survey.Record) error {
		rec.ThemeAssessments = replacement
		return nil
	})
}

// SaveCustomerThemes stores the company's customer themes as "; "-joined text.
func (m *Manager) SaveCustomerThemes(ctx context.Context, company string, themes []string) (*delta.Push, error) {
	text := joinItems(themes)
	return m.update(ctx, company, func(rec *survey.Record) error {
		rec.CustomerThemesText = text
		return nil
	})
}

// SaveEmergingTech stores the company's emerging tech as "; "-joined text.
func (m *Manager) SaveEmergingTech(ctx context.Context, company string, items []string) (*delta.Push, error) {
	text := joinItems(items)
	return m.update(ctx, company, func(rec *survey.Record) error {
		rec.EmergingTechText = text
		return nil
	})
}

func (m *Manager) update(ctx context.Context, company string, fn func(rec *survey.Record) error) (*delta.Push, error) {
	saved, err := m.store.UpdatePrimary(company, fn)
	if err != nil {
		return nil, err
	}
	if m.notifier == nil {
		return nil, nil
	}
	return m.notifier.RecordSaved(ctx, saved), nil
}

func joinItems(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			kept = append(kept, item)
		}
	}
	return strings.Join(kept, "; ")
}
