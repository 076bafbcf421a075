package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/interest"
	"github.com/strrl/brightspots/internal/journal"
	"github.com/strrl/brightspots/internal/store"
	"github.com/strrl/brightspots/internal/survey"
	"github.com/strrl/brightspots/internal/themes"
)

// Client reads and writes documents by location.
type Client interface {
	Get(ctx context.Context, location string) ([]byte, error)
	Put(ctx context.Context, location string, body []byte, contentType string) error
}

type Options struct {
	DataSource   string
	ThemesSource string
	DeltaFolder  string
	RecordID     string
	Fields       survey.FieldMap
	Client       Client
	Aggregator   aggregator.Config
	// Journal is optional.
	Journal *journal.Journal
}

type Stats struct {
	Records         int           `json:"records"`
	Themes          int           `json:"themes"`
	Migrated        []string      `json:"migrated,omitempty"`
	Skipped         []string      `json:"skipped,omitempty"`
	DeltaPulled     bool          `json:"deltaPulled"`
	DeltaOutcome    delta.Outcome `json:"-"`
	DeltaStatus     string        `json:"deltaStatus,omitempty"`
	InterestDetails int           `json:"interestDetails"`
}

// Dashboard is one booted session: the loaded store plus the managers and
// aggregator that read and write it.
type Dashboard struct {
	Store      *store.Store
	Themes     *themes.Manager
	Interest   *interest.Manager
	Aggregator *aggregator.Aggregator
	Scope      *delta.Scope
	Sync       *delta.Synchronizer

	journal *journal.Journal
	logger  *zap.Logger
	stats   Stats

	journaling sync.WaitGroup
}

// Open boots a session. Records and the theme catalog load concurrently; only
// a record load failure is fatal. The scoped delta is pulled after records are
// in place and before the interest index is built.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Client == nil {
		return nil, errors.New("dashboard needs a client")
	}

	fields := opts.Fields.WithDefaults()
	s := store.New(opts.Client, fields, logger.Named("store"))
	syncer := delta.New(opts.Client, fields, logger.Named("delta"))
	scope := delta.NewScope(opts.DeltaFolder, opts.RecordID, syncer)

	var notifier delta.Notifier
	if scope.Enabled() {
		notifier = scope
	}

	d := &Dashboard{
		Store:      s,
		Themes:     themes.NewManager(s, notifier, logger.Named("themes")),
		Interest:   interest.NewManager(s, notifier, logger.Named("interest")),
		Aggregator: aggregator.NewAggregator(opts.Aggregator, s),
		Scope:      scope,
		Sync:       syncer,
		journal:    opts.Journal,
		logger:     logger,
	}

	var loaded *store.LoadResult
	var catalog []survey.Theme

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.Load(gctx, opts.DataSource)
		if err != nil {
			return err
		}
		loaded = res
		return nil
	})
	g.Go(func() error {
		catalog = s.LoadThemes(gctx, opts.ThemesSource)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load survey data: %w", err)
	}

	d.stats.Records = loaded.Count
	d.stats.Themes = len(catalog)

	if loaded.Legacy != nil {
		report := d.Themes.MigrateLegacy(loaded.Legacy)
		d.stats.Migrated = report.Migrated
		d.stats.Skipped = report.Skipped
	}

	if res, ok := scope.Pull(ctx, s); ok {
		d.stats.DeltaPulled = true
		d.stats.DeltaOutcome = res.Outcome
		d.stats.DeltaStatus = res.Outcome.String()
	}

	d.stats.InterestDetails = d.Interest.Init()

	logger.Info("dashboard ready",
		zap.Int("records", d.stats.Records),
		zap.Int("themes", d.stats.Themes),
		zap.Int("migrated", len(d.stats.Migrated)),
		zap.Bool("delta_scoped", scope.Enabled()),
		zap.Int("interest_details", d.stats.InterestDetails))

	return d, nil
}

func (d *Dashboard) Stats() Stats {
	return d.stats
}

func (d *Dashboard) SaveAssessments(ctx context.Context, company string, assessments map[string]survey.Assessment) (*delta.Push, error) {
	push, err := d.Themes.Save(ctx, company, assessments)
	if err != nil {
		return nil, err
	}
	d.record(ctx, company, journal.KindAssessments, assessments, push)
	return push, nil
}

func (d *Dashboard) SaveCustomerThemes(ctx context.Context, company string, items []string) (*delta.Push, error) {
	push, err := d.Themes.SaveCustomerThemes(ctx, company, items)
	if err != nil {
		return nil, err
	}
	d.record(ctx, company, journal.KindCustomerThemes, items, push)
	return push, nil
}

func (d *Dashboard) SaveEmergingTech(ctx context.Context, company string, items []string) (*delta.Push, error) {
	push, err := d.Themes.SaveEmergingTech(ctx, company, items)
	if err != nil {
		return nil, err
	}
	d.record(ctx, company, journal.KindEmergingTech, items, push)
	return push, nil
}

func (d *Dashboard) SaveInterest(ctx context.Context, company string, category survey.RatingField, topic string, detail survey.InterestDetail) (*delta.Push, error) {
	push, err := d.Interest.Save(ctx, company, category, topic, detail)
	if err != nil {
		return nil, err
	}
	d.record(ctx, company, journal.KindInterest, detail, push)
	return push, nil
}

func (d *Dashboard) AppendInterest(ctx context.Context, company string, category survey.RatingField, topic string, records ...survey.DetailRecord) (*delta.Push, error) {
	push, err := d.Interest.Append(ctx, company, category, topic, records...)
	if err != nil {
		return nil, err
	}
	saved, _ := d.Interest.Get(company, category, topic)
	d.record(ctx, company, journal.KindInterest, saved, push)
	return push, nil
}

// PushRecord pushes the current state of id to folder, regardless of which
// record the session is scoped to.
func (d *Dashboard) PushRecord(ctx context.Context, folder, id string) (*delta.Push, error) {
	rec, ok := d.Store.FindByID(id)
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, survey.ErrNotFound)
	}
	push := d.Sync.Push(ctx, folder, rec)
	d.journalPush(ctx, rec.Company, rec.ID, push)
	return push, nil
}

func (d *Dashboard) record(ctx context.Context, company, kind string, payload any, push *delta.Push) {
	recordID := ""
	if rec, ok := d.Store.Primary(company); ok {
		recordID = rec.ID
	}

	if err := d.journal.Append(ctx, company, kind, recordID, payload); err != nil {
		d.logger.Warn("failed to journal save", zap.String("company", company), zap.Error(err))
	}
	d.journalPush(ctx, company, recordID, push)
}

// journalPush records the push outcome once it is known.
func (d *Dashboard) journalPush(ctx context.Context, company, recordID string, push *delta.Push) {
	if push == nil || d.journal == nil {
		return
	}
	jctx := context.WithoutCancel(ctx)
	d.journaling.Add(1)
	go func() {
		defer d.journaling.Done()
		<-push.Done()
		result := map[string]string{"location": push.Location, "state": push.State().String()}
		if err := push.Err(); err != nil {
			result["error"] = err.Error()
		}
		if err := d.journal.Append(jctx, company, journal.KindDeltaPush, recordID, result); err != nil {
			d.logger.Warn("failed to journal push", zap.String("location", push.Location), zap.Error(err))
		}
	}()
}

// Export is the full session state in the wrapped load format.
type Export struct {
	SurveyData       []json.RawMessage                       `json:"surveyData"`
	ThemeAssessments map[string]map[string]survey.Assessment `json:"themeAssessments"`
}

func (d *Dashboard) Export() (*Export, error) {
	fields := d.Store.Fields()
	records := d.Store.Records()

	out := &Export{
		SurveyData:       make([]json.RawMessage, 0, len(records)),
		ThemeAssessments: d.Themes.All(),
	}
	for _, rec := range records {
		data, err := fields.Encode(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
		out.SurveyData = append(out.SurveyData, data)
	}
	return out, nil
}

// Wait blocks until pending pushes and their journal entries are written.
func (d *Dashboard) Wait() {
	d.Sync.Wait()
	d.journaling.Wait()
}

// Close waits for background work. The journal belongs to the caller.
func (d *Dashboard) Close() {
	d.Wait()
}
