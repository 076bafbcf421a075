package interest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/store"
	"github.com/strrl/brightspots/internal/survey"
)

type key struct {
	category survey.RatingField
	company  string
	topic    string
}

// Manager indexes interest details by (category, company, topic) and mirrors
// every save onto the company's primary record.
type Manager struct {
	store    *store.Store
	notifier delta.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.RWMutex
	index map[key]survey.InterestDetail
}

func NewManager(s *store.Store, notifier delta.Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    s,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		index:    make(map[key]survey.InterestDetail),
	}
}

// Init rebuilds the index from the interest details stored on records.
func (m *Manager) Init() int {
	index := make(map[key]survey.InterestDetail)
	m.store.View(func(records []*survey.Record) {
		for _, rec := range records {
			if strings.TrimSpace(rec.Company) == "" {
				continue
			}
			for category, topics := range rec.InterestDetails {
				for topic, detail := range topics {
					index[key{category, rec.Company, topic}] = detail.Clone()
				}
			}
		}
	})

	m.mu.Lock()
	m.index = index
	m.mu.Unlock()

	m.logger.Debug("indexed interest details", zap.Int("entries", len(index)))
	return len(index)
}

func (m *Manager) Get(company string, category survey.RatingField, topic string) (survey.InterestDetail, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	detail, ok := m.index[key{category, company, topic}]
	if !ok {
		return survey.InterestDetail{}, false
	}
	return detail.Clone(), true
}

// Save upserts detail for (company, category, topic), refreshing its
// lastUpdated time, and mirrors it onto the company's primary record.
func (m *Manager) Save(ctx context.Context, company string, category survey.RatingField, topic string, detail survey.InterestDetail) (*delta.Push, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: %q", survey.ErrInvalidCategory, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, company, category, topic, detail)
}

// Append adds records to the topic's existing detail list and saves it.
func (m *Manager) Append(ctx context.Context, company string, category survey.RatingField, topic string, records ...survey.DetailRecord) (*delta.Push, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: %q", survey.ErrInvalidCategory, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	detail := m.index[key{category, company, topic}].Clone()
	detail.Records = append(detail.Records, records...)
	return m.saveLocked(ctx, company, category, topic, detail)
}

func (m *Manager) saveLocked(ctx context.Context, company string, category survey.RatingField, topic string, detail survey.InterestDetail) (*delta.Push, error) {
	stored := detail.Clone()
	stored.Topic = topic
	stored.Category = category
	stored.LastUpdated = survey.Timestamp(m.now())
	if stored.Records == nil {
		stored.Records = []survey.DetailRecord{}
	}

	saved, err := m.store.UpdatePrimary(company, func(rec *survey.Record) error {
		if rec.InterestDetails == nil {
			rec.InterestDetails = make(survey.InterestDetails)
		}
		if rec.InterestDetails[category] == nil {
			rec.InterestDetails[category] = make(map[string]survey.InterestDetail)
		}
		rec.InterestDetails[category][topic] = stored.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.index[key{category, company, topic}] = stored

	if m.notifier == nil {
		return nil, nil
	}
	return m.notifier.RecordSaved(ctx, saved), nil
}
