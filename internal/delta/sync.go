package delta

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/strrl/brightspots/internal/survey"
	"github.com/strrl/brightspots/internal/transport"
)

// LocalOnlyWarning is shown when a push fails and the edit lives only in memory.
const LocalOnlyWarning = "Could not save changes to the remote location. Your changes are saved locally but will not persist after page reload."

const contentType = "application/json"

type Client interface {
	Get(ctx context.Context, location string) ([]byte, error)
	Put(ctx context.Context, location string, body []byte, contentType string) error
}

// Target is the record collection a pulled delta is merged into.
type Target interface {
	Update(id string, fn func(rec *survey.Record) error) (*survey.Record, error)
}

type Outcome int

const (
	OutcomeAbsent Outcome = iota
	OutcomeApplied
	OutcomeFailed
	OutcomeNoRecord
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAbsent:
		return "absent"
	case OutcomeApplied:
		return "applied"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoRecord:
		return "no-record"
	}
	return "unknown"
}

type PullResult struct {
	Outcome  Outcome
	Location string
	Err      error
}

type Synchronizer struct {
	client Client
	fields survey.FieldMap
	logger *zap.Logger

	inflight sync.WaitGroup
}

func New(client Client, fields survey.FieldMap, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		client: client,
		fields: fields.WithDefaults(),
		logger: logger,
	}
}

// Pull fetches the delta for id and merges it into target. It never fails the
// caller: a missing delta is a normal outcome and transport failures are
// logged and reported in the result only.
func (s *Synchronizer) Pull(ctx context.Context, folder, id string, target Target) PullResult {
	location := Location(folder, id)

	data, err := s.client.Get(ctx, location)
	if transport.IsNotFound(err) {
		s.logger.Info("no delta found", zap.String("location", location))
		return PullResult{Outcome: OutcomeAbsent, Location: location}
	}
	if err != nil {
		terr := &survey.TransportError{Op: "pull", Location: location, Status: transport.StatusCode(err), Err: err}
		s.logger.Warn("failed to pull delta", zap.Error(terr))
		return PullResult{Outcome: OutcomeFailed, Location: location, Err: terr}
	}

	_, err = target.Update(id, func(rec *survey.Record) error {
		return Merge(rec, data, s.fields)
	})
	if errors.Is(err, survey.ErrNotFound) {
		s.logger.Warn("delta has no matching record", zap.String("id", id))
		return PullResult{Outcome: OutcomeNoRecord, Location: location, Err: err}
	}
	if err != nil {
		terr := &survey.TransportError{Op: "pull", Location: location, Err: err}
		s.logger.Warn("failed to apply delta", zap.Error(terr))
		return PullResult{Outcome: OutcomeFailed, Location: location, Err: terr}
	}

	s.logger.Info("applied delta", zap.String("id", id), zap.String("location", location))
	return PullResult{Outcome: OutcomeApplied, Location: location}
}

// Push serializes rec now and writes it to the delta location in the
// background. The returned Push reports completion; failures never undo the
// in-memory edit.
func (s *Synchronizer) Push(ctx context.Context, folder string, rec *survey.Record) *Push {
	location := Location(folder, rec.ID)
	p := newPush(location)

	p.setState(PushSerializing)
	body, err := s.fields.EncodeIndent(rec)
	if err != nil {
		s.finish(p, &survey.TransportError{Op: "push", Location: location, Err: err})
		return p
	}

	p.setState(PushSending)
	sendCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := s.client.Put(sendCtx, location, body, contentType)
		if err != nil {
			err = &survey.TransportError{Op: "push", Location: location, Status: transport.StatusCode(err), Err: err}
		}
		s.finish(p, err)
	}()
	return p
}

// Wait blocks until every push started so far has finished.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

func (s *Synchronizer) finish(p *Push, err error) {
	if err != nil {
		s.logger.Warn(LocalOnlyWarning, zap.String("location", p.Location), zap.Error(err))
	} else {
		s.logger.Info("pushed delta", zap.String("location", p.Location))
	}
	p.complete(err)
}
