package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/brightspots/internal/dashboard"
	"github.com/strrl/brightspots/internal/delta"
	"github.com/strrl/brightspots/internal/survey"
	"github.com/strrl/brightspots/internal/transport"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const records = `[
	{"Id": "1", "Jouw bedrijf": "Acme", "Jouw naam": "Ann", "Rol": "", "Start time": "01-02-2024 09:00",
	 "newCustomerThemes": "Data", "newCustomerThemesTags": ["Data", "AI"],
	 "emergingTechVendorProduct": "Edge, Mesh",
	 "techConcepts": {"Edge": "Sterke, concrete interesse", "Mesh": "Vage interesse"}},
	{"Id": "2", "Jouw bedrijf": "Beta", "Rol": "", "Start time": "02-02-2024 11:00",
	 "newCustomerThemesTags": ["ai"],
	 "techConcepts": {"Edge": "Redelijke interesse"}}
]`

func newDashboard(t *testing.T, deltaFolder, recordID string) *dashboard.Dashboard {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(data, []byte(records), 0644))

	d, err := dashboard.Open(context.Background(), dashboard.Options{
		DataSource:   data,
		ThemesSource: filepath.Join(dir, "missing-themes.json"),
		DeltaFolder:  deltaFolder,
		RecordID:     recordID,
		Fields:       survey.DefaultFields(),
		Client:       transport.NewClient(transport.Config{}),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestReadEndpoints(t *testing.T) {
	h := New(Config{}, newDashboard(t, "", ""), nil).Handler()

	w := do(t, h, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Summary struct {
			TotalResponses int `json:"totalResponses"`
			Companies      int `json:"companies"`
		} `json:"summary"`
	}
	decode(t, w, &summary)
	assert.Equal(t, 2, summary.Summary.TotalResponses)
	assert.Equal(t, 2, summary.Summary.Companies)

	w = do(t, h, http.MethodGet, "/api/themes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var themes []survey.Theme
	decode(t, w, &themes)
	assert.Equal(t, survey.DefaultThemes(), themes)

	w = do(t, h, http.MethodGet, "/api/rollups/techConcepts?top=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rollup []struct {
		Name string `json:"name"`
	}
	decode(t, w, &rollup)
	require.Len(t, rollup, 1)
	assert.Equal(t, "Edge", rollup[0].Name)

	w = do(t, h, http.MethodGet, "/api/tags/customer/AI/companies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["Acme"]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/tags/customer/ai/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]any
	decode(t, w, &entries)
	assert.Len(t, entries, 2)

	w = do(t, h, http.MethodGet, "/api/tags/tech/cloud", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/companies/Nobody/assessments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/records/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Jouw bedrijf":"Beta"`)
}

func TestBadRequests(t *testing.T) {
	h := New(Config{}, newDashboard(t, "", ""), nil).Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/tags/people", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rollups/colors", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/rollups/challenges?top=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/tags/tech/AI/companies", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/records/99", nil).Code)
}

func TestWritesRequireAdmin(t *testing.T) {
	h := New(Config{}, newDashboard(t, "", ""), nil).Handler()

	w := do(t, h, http.MethodPut, "/api/companies/Acme/customer-themes", map[string]any{"items": []string{"Data"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminSaveIsPushed(t *testing.T) {
	folder := t.TempDir()
	d := newDashboard(t, folder, "1")
	h := New(Config{Admin: true}, d, nil).Handler()

	w := do(t, h, http.MethodPut, "/api/companies/Acme/assessments", map[string]any{
		"1": map[string]string{"involvement": "fully-claimed", "description": "core"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	decode(t, w, &resp)
	assert.Equal(t, true, resp["saved"])
	assert.Equal(t, true, resp["pushed"])
	assert.NotContains(t, resp, "warning")

	data, err := os.ReadFile(delta.Location(folder, "1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "fully-claimed")

	// Beta is not the scoped record.
	w = do(t, h, http.MethodPut, "/api/companies/Beta/emerging-tech", map[string]any{"items": []string{"Edge"}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, false, resp["pushed"])
}

func TestAdminSaveWarnsWhenPushFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	h := New(Config{Admin: true}, newDashboard(t, blocker, "1"), nil).Handler()

	w := do(t, h, http.MethodPut, "/api/companies/Acme/customer-themes", map[string]any{"items": []string{"Data", "Cloud"}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	decode(t, w, &resp)
	assert.Equal(t, true, resp["saved"])
	assert.Equal(t, delta.LocalOnlyWarning, resp["warning"])

	w = do(t, h, http.MethodGet, "/api/customer-themes", nil)
	assert.Contains(t, w.Body.String(), "Data; Cloud")
}

func TestAdminValidation(t *testing.T) {
	h := New(Config{Admin: true}, newDashboard(t, "", ""), nil).Handler()

	w := do(t, h, http.MethodPut, "/api/companies/Acme/assessments", map[string]any{
		"1": map[string]string{"involvement": "maybe"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/companies/Acme/assessments", map[string]any{
		"1": map[string]string{"involvement": ""},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/companies/Ghost/assessments", map[string]any{
		"1": map[string]string{"description": "only words"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/api/companies/Acme/interest/techConcepts/Edge", map[string]any{
		"records": []map[string]string{{"where": "Expo"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/companies/Acme/interest/colors/Edge", map[string]any{
		"records": []map[string]string{{"where": "Expo", "when": "May", "what": "demo"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/companies/Acme/interest/techConcepts/Edge", map[string]any{
		"records": []map[string]string{{"where": "Expo", "when": "May", "what": "demo"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/companies/Acme/interest/techConcepts/Edge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail survey.InterestDetail
	decode(t, w, &detail)
	require.Len(t, detail.Records, 1)
	assert.Equal(t, survey.NotSpecified, detail.Records[0].From)
}

func TestDeltaFileEndpoint(t *testing.T) {
	dir := t.TempDir()
	h := New(Config{DeltasDir: dir}, newDashboard(t, "", ""), nil).Handler()

	path := "/" + delta.Dir + "/" + delta.FileName("7")
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, path, nil).Code)

	w := do(t, h, http.MethodPut, path, `{"Id": "7"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"Id": "7"}`, w.Body.String())

	_, err := os.Stat(delta.Location(dir, "7"))
	assert.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/"+delta.Dir+"/notes.txt", nil).Code)
}

func TestServerActsAsDeltaFolder(t *testing.T) {
	remote := httptest.NewServer(New(Config{DeltasDir: t.TempDir()}, newDashboard(t, "", ""), nil).Handler())
	defer remote.Close()

	d := newDashboard(t, remote.URL, "2")
	push, err := d.SaveEmergingTech(context.Background(), "Beta", []string{"Quantum"})
	require.NoError(t, err)
	require.NotNil(t, push)
	require.NoError(t, push.Wait(context.Background()))

	client := transport.NewClient(transport.Config{})
	defer client.Close()
	data, err := client.Get(context.Background(), delta.Location(remote.URL, "2"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Quantum")
}
