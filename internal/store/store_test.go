package store

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/brightspots/internal/survey"
	"github.com/strrl/brightspots/internal/transport"
)

type memFetcher map[string]string

func (m memFetcher) Get(_ context.Context, location string) ([]byte, error) {
	data, ok := m[location]
	if !ok {
		return nil, &transport.StatusError{Code: http.StatusNotFound}
	}
	return []byte(data), nil
}

const threeRecords = `[
	{"Id": "1", "Jouw bedrijf": "Acme", "Rol": ""},
	{"Id": "2", "Jouw bedrijf": "Acme", "Rol": "CTO"},
	{"Id": "3", "Jouw bedrijf": "Beta", "Rol": "Sales"}
]`

func TestLoadArrayLayout(t *testing.T) {
	s := New(memFetcher{"data.json": threeRecords}, survey.DefaultFields(), nil)

	res, err := s.Load(context.Background(), "data.json")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Nil(t, res.Legacy)
	assert.Equal(t, 3, s.Len())

	rec, ok := s.FindByID("2")
	require.True(t, ok)
	assert.Equal(t, "CTO", rec.Role)

	_, ok = s.FindByID("missing")
	assert.False(t, ok)
}

func TestLoadWrappedLayout(t *testing.T) {
	payload := `{
		"surveyData": [{"Id": "1", "Jouw bedrijf": "Acme"}],
		"themeAssessments": {"Acme": {"1": {"involvement": "our-ambition", "description": "soon"}}}
	}`
	s := New(memFetcher{"data.json": payload}, survey.DefaultFields(), nil)

	res, err := s.Load(context.Background(), "data.json")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.NotNil(t, res.Legacy)
	assert.Equal(t, survey.InvolvementOurAmbition, res.Legacy["Acme"]["1"].Involvement)
}

func TestLoadToleratesRaggedLegacyAssessments(t *testing.T) {
	payload := `{
		"surveyData": [{"Id": "1", "Jouw bedrijf": "Acme", "Start time": 12345, "Rol": null}],
		"themeAssessments": {
			"Acme": {
				"1": {"involvement": "our-ambition", "description": "soon", "timestamp": 1700000000000},
				"2": "not an object"
			},
			"Beta": ["not", "a", "map"]
		}
	}`
	s := New(memFetcher{"data.json": payload}, survey.DefaultFields(), nil)

	res, err := s.Load(context.Background(), "data.json")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.NotNil(t, res.Legacy)

	assert.Equal(t, map[string]survey.Assessment{
		"1": {Involvement: survey.InvolvementOurAmbition, Description: "soon", Timestamp: "1700000000000"},
	}, res.Legacy["Acme"])
	assert.NotContains(t, res.Legacy, "Beta")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "object without surveyData", payload: `{"foo": []}`},
		{name: "scalar", payload: `42`},
		{name: "broken json", payload: `[{"Id": `},
		{name: "non-object record", payload: `["x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(memFetcher{"data.json": tt.payload}, survey.DefaultFields(), nil)
			_, err := s.Load(context.Background(), "data.json")

			var loadErr *survey.LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, "data.json", loadErr.Source)
		})
	}

	s := New(memFetcher{}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "absent.json")
	var loadErr *survey.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, transport.IsNotFound(err))
}

func TestLoadThemesFallsBack(t *testing.T) {
	s := New(memFetcher{"themes.json": `[{"Id": "9", "Name": "Edge", "Description": "d"}]`}, survey.DefaultFields(), nil)

	themes := s.LoadThemes(context.Background(), "themes.json")
	assert.Equal(t, []survey.Theme{{ID: "9", Name: "Edge", Description: "d"}}, themes)

	themes = s.LoadThemes(context.Background(), "missing.json")
	assert.Equal(t, survey.DefaultThemes(), themes)
	assert.Equal(t, survey.DefaultThemes(), s.Themes())

	s = New(memFetcher{"themes.json": `{"not": "array"}`}, survey.DefaultFields(), nil)
	assert.Len(t, s.LoadThemes(context.Background(), "themes.json"), 3)
}

func TestPrimaryRecordSelection(t *testing.T) {
	payload := `[
		{"Id": "1", "Jouw bedrijf": "Acme", "Rol": "CTO"},
		{"Id": "2", "Jouw bedrijf": "Acme", "Rol": "  "},
		{"Id": "3", "Jouw bedrijf": "Acme", "Rol": ""},
		{"Id": "4", "Jouw bedrijf": "Beta", "Rol": "Sales"},
		{"Id": "5", "Jouw bedrijf": "", "Rol": ""}
	]`
	s := New(memFetcher{"d": payload}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "d")
	require.NoError(t, err)

	acme, ok := s.Primary("Acme")
	require.True(t, ok)
	assert.Equal(t, "2", acme.ID)

	beta, ok := s.Primary("Beta")
	require.True(t, ok)
	assert.Equal(t, "4", beta.ID)

	_, ok = s.Primary("")
	assert.False(t, ok)
}

func TestDuplicateIDsKeepFirst(t *testing.T) {
	payload := `[{"Id": "1", "Jouw naam": "first"}, {"Id": "1", "Jouw naam": "second"}]`
	s := New(memFetcher{"d": payload}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "d")
	require.NoError(t, err)

	rec, ok := s.FindByID("1")
	require.True(t, ok)
	assert.Equal(t, "first", rec.RespondentName)
	assert.Equal(t, 2, s.Len())
}

func TestUpdatePrimary(t *testing.T) {
	s := New(memFetcher{"d": threeRecords}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "d")
	require.NoError(t, err)

	updated, err := s.UpdatePrimary("Acme", func(rec *survey.Record) error {
		rec.CustomerThemesText = "cloud"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1", updated.ID)

	second, _ := s.FindByID("2")
	assert.Empty(t, second.CustomerThemesText)

	_, err = s.UpdatePrimary("Nope", func(*survey.Record) error { return nil })
	assert.True(t, errors.Is(err, survey.ErrNotFound))

	boom := errors.New("boom")
	_, err = s.UpdatePrimary("Acme", func(rec *survey.Record) error {
		rec.CustomerThemesText = "discarded"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	first, _ := s.FindByID("1")
	assert.Equal(t, "cloud", first.CustomerThemesText)
}

func TestUpdateReindexesOnCompanyChange(t *testing.T) {
	s := New(memFetcher{"d": threeRecords}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "d")
	require.NoError(t, err)

	_, err = s.Update("3", func(rec *survey.Record) error {
		rec.Company = "Gamma"
		rec.ID = "ignored"
		return nil
	})
	require.NoError(t, err)

	_, ok := s.Primary("Beta")
	assert.False(t, ok)
	gamma, ok := s.Primary("Gamma")
	require.True(t, ok)
	assert.Equal(t, "3", gamma.ID)
}

func TestRecordsAreCopies(t *testing.T) {
	s := New(memFetcher{"d": threeRecords}, survey.DefaultFields(), nil)
	_, err := s.Load(context.Background(), "d")
	require.NoError(t, err)

	recs := s.Records()
	recs[0].Company = "Mutated"

	first, _ := s.FindByID("1")
	assert.Equal(t, "Acme", first.Company)

	s.Reset()
	assert.Equal(t, 0, s.Len())
}
