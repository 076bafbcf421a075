package delta

import (
	"context"
	"sync"

	"github.com/strrl/brightspots/internal/survey"
)

type PushState int

const (
	PushIdle PushState = iota
	PushSerializing
	PushSending
	PushSucceeded
	PushFailed
)

func (s PushState) String() string {
	switch s {
	case PushIdle:
		return "idle"
	case PushSerializing:
		return "serializing"
	case PushSending:
		return "sending"
	case PushSucceeded:
		return "succeeded"
	case PushFailed:
		return "failed"
	}
	return "unknown"
}

// Push tracks one detached delta write.
type Push struct {
	Location string

	mu    sync.Mutex
	state PushState
	err   error
	done  chan struct{}
}

func newPush(location string) *Push {
	return &Push{
		Location: location,
		done:     make(chan struct{}),
	}
}

func (p *Push) setState(state PushState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Push) complete(err error) {
	p.mu.Lock()
	p.err = err
	if err != nil {
		p.state = PushFailed
	} else {
		p.state = PushSucceeded
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *Push) State() PushState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err is the push failure, nil while running or after success.
func (p *Push) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Push) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the push finishes or ctx ends and returns the push error.
func (p *Push) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scope is a session bound to one record's delta file. Saves touching that
// record are pushed; everything else stays local.
type Scope struct {
	Folder   string
	RecordID string
	sync     *Synchronizer
}

func NewScope(folder, recordID string, s *Synchronizer) *Scope {
	return &Scope{Folder: folder, RecordID: recordID, sync: s}
}

func (s *Scope) Enabled() bool {
	return s != nil && s.sync != nil && s.Folder != "" && s.RecordID != ""
}

// RecordSaved pushes rec when it is the scoped record and returns nil otherwise.
func (s *Scope) RecordSaved(ctx context.Context, rec *survey.Record) *Push {
	if !s.Enabled() || rec == nil || rec.ID != s.RecordID {
		return nil
	}
	return s.sync.Push(ctx, s.Folder, rec)
}

// Pull merges the scoped record's delta into target.
func (s *Scope) Pull(ctx context.Context, target Target) (PullResult, bool) {
	if !s.Enabled() {
		return PullResult{}, false
	}
	return s.sync.Pull(ctx, s.Folder, s.RecordID, target), true
}

// Wait blocks until every push started through the scope has finished.
func (s *Scope) Wait() {
	if s.Enabled() {
		s.sync.Wait()
	}
}

// Notifier is told about every saved record.
type Notifier interface {
	RecordSaved(ctx context.Context, rec *survey.Record) *Push
}
