package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/survey"
)

// Fetcher reads a document from a location.
type Fetcher interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

type LoadResult struct {
	Count int
	// Legacy is the global assessment map of the wrapped layout, nil otherwise.
	Legacy survey.LegacyAssessments
}

// Store is the in-memory record collection of one session. Records keep their
// load order; lookups by id and by company go through indexes rebuilt on load.
type Store struct {
	fetcher Fetcher
	fields  survey.FieldMap
	logger  *zap.Logger

	mu      sync.RWMutex
	records []*survey.Record
	byID    map[string]*survey.Record
	primary map[string]*survey.Record
	themes  []survey.Theme
}

func New(fetcher Fetcher, fields survey.FieldMap, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		fetcher: fetcher,
		fields:  fields.WithDefaults(),
		logger:  logger,
	}
	s.Reset()
	return s
}

func (s *Store) Fields() survey.FieldMap {
	return s.fields
}

// Load fetches source and replaces the store contents. The payload is either
// a bare array of records or {"surveyData": [...], "themeAssessments": {...}}.
func (s *Store) Load(ctx context.Context, source string) (*LoadResult, error) {
	data, err := s.fetcher.Get(ctx, source)
	if err != nil {
		return nil, &survey.LoadError{Source: source, Err: err}
	}

	rawRecords, legacy, err := splitPayload(data)
	if err != nil {
		return nil, &survey.LoadError{Source: source, Err: err}
	}

	records := make([]*survey.Record, 0, len(rawRecords))
	for i, raw := range rawRecords {
		rec, err := s.fields.Decode(raw)
		if err != nil {
			return nil, &survey.LoadError{Source: source, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		records = append(records, rec)
	}

	s.mu.Lock()
	s.records = records
	s.reindexLocked(true)
	s.mu.Unlock()

	s.logger.Info("loaded survey records",
		zap.String("source", source),
		zap.Int("count", len(records)),
		zap.Bool("legacy_assessments", legacy != nil))

	return &LoadResult{Count: len(records), Legacy: legacy}, nil
}

func splitPayload(data []byte) ([]json.RawMessage, survey.LegacyAssessments, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, errors.New("empty payload")
	}

	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, fmt.Errorf("failed to parse record array: %w", err)
		}
		return records, nil, nil
	case '{':
		var wrapped struct {
			SurveyData       *[]json.RawMessage `json:"surveyData"`
			ThemeAssessments json.RawMessage    `json:"themeAssessments"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, nil, fmt.Errorf("failed to parse payload: %w", err)
		}
		if wrapped.SurveyData == nil {
			return nil, nil, errors.New("payload has no surveyData array")
		}
		return *wrapped.SurveyData, decodeLegacy(wrapped.ThemeAssessments), nil
	}
	return nil, nil, errors.New("payload is neither an array nor an object")
}

// decodeLegacy reads the global company -> theme id -> assessment map. Companies
// whose value is not an object are dropped.
func decodeLegacy(raw json.RawMessage) survey.LegacyAssessments {
	var companies map[string]json.RawMessage
	if err := json.Unmarshal(raw, &companies); err != nil || companies == nil {
		return nil
	}
	legacy := make(survey.LegacyAssessments, len(companies))
	for company, entries := range companies {
		if assessments := survey.DecodeAssessments(entries); assessments != nil {
			legacy[company] = assessments
		}
	}
	return legacy
}

// LoadThemes fetches the theme catalog. Any failure falls back to the
// built-in catalog; the returned catalog is also kept on the store.
func (s *Store) LoadThemes(ctx context.Context, source string) []survey.Theme {
	themes, err := s.fetchThemes(ctx, source)
	if err != nil {
		s.logger.Warn("using default theme catalog",
			zap.String("source", source),
			zap.Error(&survey.LoadError{Source: source, Err: err}))
		themes = survey.DefaultThemes()
	}

	s.mu.Lock()
	s.themes = themes
	s.mu.Unlock()

	return append([]survey.Theme(nil), themes...)
}

func (s *Store) fetchThemes(ctx context.Context, source string) ([]survey.Theme, error) {
	data, err := s.fetcher.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	var themes []survey.Theme
	if err := json.Unmarshal(data, &themes); err != nil {
		return nil, fmt.Errorf("failed to parse themes: %w", err)
	}
	return themes, nil
}

func (s *Store) Themes() []survey.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]survey.Theme(nil), s.themes...)
}

// Records returns deep copies of all records in store order.
func (s *Store) Records() []*survey.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*survey.Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// View runs fn against the live records under the read lock. fn must not
// retain or modify them.
func (s *Store) View(fn func(records []*survey.Record)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.records)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) FindByID(id string) (*survey.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Primary returns a copy of the record that company-level edits land on.
func (s *Store) Primary(company string) (*survey.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.primary[company]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// UpdatePrimary applies fn to the company's primary record in place and returns
// a copy of the result. fn returning an error leaves the record untouched.
func (s *Store) UpdatePrimary(company string, fn func(rec *survey.Record) error) (*survey.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.primary[company]
	if !ok {
		return nil, fmt.Errorf("%w: %q", survey.ErrNotFound, company)
	}
	return s.applyLocked(rec, fn)
}

// Update applies fn to the record with the given id.
func (s *Store) Update(id string, fn func(rec *survey.Record) error) (*survey.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %q", survey.ErrNotFound, id)
	}
	return s.applyLocked(rec, fn)
}

func (s *Store) applyLocked(rec *survey.Record, fn func(rec *survey.Record) error) (*survey.Record, error) {
	working := rec.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = rec.ID
	moved := working.Company != rec.Company || working.HasRole() != rec.HasRole()
	*rec = *working
	if moved {
		s.reindexLocked(false)
	}
	return rec.Clone(), nil
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.themes = nil
	s.byID = make(map[string]*survey.Record)
	s.primary = make(map[string]*survey.Record)
}

func (s *Store) reindexLocked(warn bool) {
	s.byID = make(map[string]*survey.Record, len(s.records))
	s.primary = make(map[string]*survey.Record)
	fallback := make(map[string]*survey.Record)

	for _, rec := range s.records {
		if _, dup := s.byID[rec.ID]; dup {
			if warn {
				s.logger.Warn("duplicate record id, keeping first", zap.String("id", rec.ID))
			}
		} else {
			s.byID[rec.ID] = rec
		}

		if strings.TrimSpace(rec.Company) == "" {
			continue
		}
		if _, ok := fallback[rec.Company]; !ok {
			fallback[rec.Company] = rec
		}
		if _, ok := s.primary[rec.Company]; !ok && !rec.HasRole() {
			s.primary[rec.Company] = rec
		}
	}

	for company, rec := range fallback {
		if _, ok := s.primary[company]; !ok {
			s.primary[company] = rec
		}
	}
}
