package delta

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/strrl/brightspots/internal/store"
	"github.com/strrl/brightspots/internal/survey"
	"github.com/strrl/brightspots/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// deltaServer is a minimal remote folder keyed by request path.
type deltaServer struct {
	mu      sync.Mutex
	files   map[string]string
	types   map[string]string
	failGet bool
	failPut bool
}

func newDeltaServer(t *testing.T) (*deltaServer, *httptest.Server) {
	ds := &deltaServer{files: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.mu.Lock()
		defer ds.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			if ds.failGet {
				http.Error(w, "broken", http.StatusInternalServerError)
				return
			}
			body, ok := ds.files[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(body))
		case http.MethodPut:
			if ds.failPut {
				http.Error(w, "read only", http.StatusForbidden)
				return
			}
			body, _ := io.ReadAll(r.Body)
			ds.files[r.URL.Path] = string(body)
			ds.types[r.URL.Path] = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return ds, srv
}

func loadStore(t *testing.T, payload string) *store.Store {
	t.Helper()
	s := store.New(memFetcher{"data": payload}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "data")
	require.NoError(t, err)
	return s
}

type memFetcher map[string]string

func (m memFetcher) Get(_ context.Context, location string) ([]byte, error) {
	data, ok := m[location]
	if !ok {
		return nil, &transport.StatusError{Code: http.StatusNotFound}
	}
	return []byte(data), nil
}

func newClient(t *testing.T) *transport.Client {
	c := transport.NewClient(transport.Config{})
	t.Cleanup(c.Close)
	return c
}

func TestLocation(t *testing.T) {
	tests := []struct {
		folder string
		want   string
	}{
		{"https://host/base", "https://host/base/conclusion-assets/brightspots-deltas/delta42.json"},
		{"https://host/base/", "https://host/base/conclusion-assets/brightspots-deltas/delta42.json"},
		{"https://host/base//", "https://host/base/conclusion-assets/brightspots-deltas/delta42.json"},
		{"", "conclusion-assets/brightspots-deltas/delta42.json"},
	}
	for _, tt := range tests {
		if got := Location(tt.folder, "42"); got != tt.want {
			t.Fatalf("Location(%q) = %q, want %q", tt.folder, got, tt.want)
		}
	}
}

func TestMergeOverlaysObjectsAndReplacesScalars(t *testing.T) {
	fields := survey.DefaultFields()
	rec, err := fields.Decode([]byte(`{
		"Id": "1",
		"Jouw naam": "old",
		"challenges": {"Y": "Vage interesse"},
		"newCustomerThemesTags": ["a", "b"]
	}`))
	require.NoError(t, err)

	require.NoError(t, Merge(rec, []byte(`{"challenges": {"X": "Sterke, concrete interesse"}}`), fields))
	require.NoError(t, Merge(rec, []byte(`{"Jouw naam": "new", "newCustomerThemesTags": ["c"], "Id": "99"}`), fields))

	assert.Equal(t, "1", rec.ID)
	assert.Equal(t, "new", rec.RespondentName)
	assert.Equal(t, []string{"Y", "X"}, rec.Challenges.Keys())
	assert.Equal(t, []string{"c"}, rec.CustomerThemesTags)

	require.NoError(t, Merge(rec, []byte(`{"themeAssessments": {"2": {"involvement": "not-for-us"}}}`), fields))
	require.NoError(t, Merge(rec, []byte(`{"themeAssessments": {"1": {"involvement": "our-ambition"}}}`), fields))
	assert.Len(t, rec.ThemeAssessments, 2)

	assert.Error(t, Merge(rec, []byte(`[1]`), fields))
}

func TestPullAbsentLeavesRecordUnchanged(t *testing.T) {
	_, srv := newDeltaServer(t)
	s := loadStore(t, `[{"Id": "1", "Jouw bedrijf": "Acme", "challenges": {"Y": "Vage interesse"}}]`)

	before, _ := s.FindByID("1")
	beforeJSON, err := s.Fields().Encode(before)
	require.NoError(t, err)

	syncer := New(newClient(t), survey.DefaultFields(), nil)
	res := syncer.Pull(context.Background(), srv.URL, "1", s)
	assert.Equal(t, OutcomeAbsent, res.Outcome)
	assert.NoError(t, res.Err)

	after, _ := s.FindByID("1")
	afterJSON, err := s.Fields().Encode(after)
	require.NoError(t, err)
	assert.Equal(t, string(beforeJSON), string(afterJSON))
}

func TestPullTransportFailureIsSwallowed(t *testing.T) {
	ds, srv := newDeltaServer(t)
	ds.failGet = true
	s := loadStore(t, `[{"Id": "1", "Jouw naam": "base"}]`)

	res := New(newClient(t), survey.DefaultFields(), nil).Pull(context.Background(), srv.URL, "1", s)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	var terr *survey.TransportError
	require.True(t, errors.As(res.Err, &terr))
	assert.Equal(t, http.StatusInternalServerError, terr.Status)

	rec, _ := s.FindByID("1")
	assert.Equal(t, "base", rec.RespondentName)
}

func TestPullApplies(t *testing.T) {
	ds, srv := newDeltaServer(t)
	ds.files["/conclusion-assets/brightspots-deltas/delta1.json"] =
		`{"Jouw naam": "merged", "challenges": {"X": "Redelijke interesse"}}`
	s := loadStore(t, `[{"Id": "1", "Jouw naam": "base", "challenges": {"Y": "Vage interesse"}}]`)

	res := New(newClient(t), survey.DefaultFields(), nil).Pull(context.Background(), srv.URL, "1", s)
	require.Equal(t, OutcomeApplied, res.Outcome)

	rec, _ := s.FindByID("1")
	assert.Equal(t, "merged", rec.RespondentName)
	assert.Equal(t, []string{"Y", "X"}, rec.Challenges.Keys())

	res = New(newClient(t), survey.DefaultFields(), nil).Pull(context.Background(), srv.URL, "missing", s)
	assert.Equal(t, OutcomeAbsent, res.Outcome)
}

func TestPushWritesIndentedJSON(t *testing.T) {
	ds, srv := newDeltaServer(t)
	syncer := New(newClient(t), survey.DefaultFields(), nil)

	rec := &survey.Record{ID: "5", Company: "Acme"}
	push := syncer.Push(context.Background(), srv.URL+"/", rec)
	require.NoError(t, push.Wait(context.Background()))
	assert.Equal(t, PushSucceeded, push.State())

	path := "/conclusion-assets/brightspots-deltas/delta5.json"
	ds.mu.Lock()
	body, ctype := ds.files[path], ds.types[path]
	ds.mu.Unlock()

	assert.Equal(t, "application/json", ctype)
	assert.True(t, strings.HasPrefix(body, "{\n  \"Id\": \"5\""))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "Acme", decoded["Jouw bedrijf"])
}

func TestPushFailureKeepsLocalState(t *testing.T) {
	ds, srv := newDeltaServer(t)
	ds.failPut = true
	syncer := New(newClient(t), survey.DefaultFields(), nil)

	push := syncer.Push(context.Background(), srv.URL, &survey.Record{ID: "5"})
	<-push.Done()

	assert.Equal(t, PushFailed, push.State())
	var terr *survey.TransportError
	require.True(t, errors.As(push.Err(), &terr))
	assert.Equal(t, http.StatusForbidden, terr.Status)
}

func TestPushOutlivesCallerContext(t *testing.T) {
	_, srv := newDeltaServer(t)
	syncer := New(newClient(t), survey.DefaultFields(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	push := syncer.Push(ctx, srv.URL, &survey.Record{ID: "9"})
	cancel()
	syncer.Wait()

	assert.Equal(t, PushSucceeded, push.State())
}

func TestScopeOnlyPushesScopedRecord(t *testing.T) {
	ds, srv := newDeltaServer(t)
	scope := NewScope(srv.URL, "1", New(newClient(t), survey.DefaultFields(), nil))
	require.True(t, scope.Enabled())

	assert.Nil(t, scope.RecordSaved(context.Background(), &survey.Record{ID: "2"}))

	push := scope.RecordSaved(context.Background(), &survey.Record{ID: "1"})
	require.NotNil(t, push)
	require.NoError(t, push.Wait(context.Background()))

	ds.mu.Lock()
	assert.Len(t, ds.files, 1)
	ds.mu.Unlock()

	var unscoped *Scope
	assert.False(t, unscoped.Enabled())
	assert.Nil(t, unscoped.RecordSaved(context.Background(), &survey.Record{ID: "1"}))
	assert.False(t, NewScope("", "1", nil).Enabled())
}

func TestDiffShowsMergedChanges(t *testing.T) {
	fields := survey.DefaultFields()
	before, err := fields.Decode([]byte(`{"Id": "4", "Jouw bedrijf": "Acme", "emergingTechVendorProduct": "Edge"}`))
	require.NoError(t, err)

	after := before.Clone()
	require.NoError(t, Merge(after, []byte(`{"emergingTechVendorProduct": "Quantum"}`), fields))

	text, err := Diff(fields, before, after)
	require.NoError(t, err)
	assert.Contains(t, text, "--- local/delta4.json")
	assert.Contains(t, text, "+++ merged/delta4.json")
	assert.Contains(t, text, `-  "emergingTechVendorProduct": "Edge"`)
	assert.Contains(t, text, `+  "emergingTechVendorProduct": "Quantum"`)

	same, err := Diff(fields, before, before.Clone())
	require.NoError(t, err)
	assert.Empty(t, same)
}
