package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal", "events.db"))
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return at }
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, "Acme", KindAssessments, "1", map[string]string{"1": "fully-claimed"}))
	require.NoError(t, j.Append(ctx, "Beta", KindEmergingTech, "3", []string{"Edge"}))

	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Beta", events[0].Company)
	assert.Equal(t, KindEmergingTech, events[0].Kind)
	assert.JSONEq(t, `["Edge"]`, string(events[0].Payload))
	assert.Equal(t, "Acme", events[1].Company)
	assert.True(t, events[1].Timestamp.Equal(at))

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, "Acme", KindInterest, "1", nil))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "null", string(events[0].Payload))
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Append(context.Background(), "Acme", KindAssessments, "1", nil))
	events, err := j.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.NoError(t, j.Close())
}
