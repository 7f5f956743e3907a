package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eruption-duration/backend/internal/storage/models"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "plots.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_InsertAndList(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	records := []*models.PlotRecord{
		{
			ID:        "a",
			UserID:    "u1",
			Kind:      "Event",
			Volcano:   "etna",
			Inputs:    map[string]string{"explosive": "Yes", "continuous": "No"},
			Features:  []float64{1, 0, 3357},
			ModelID:   "event_gb",
			Status:    models.StatusOK,
			Points:    120,
			LatencyMS: 4,
			CreatedAt: now.Add(-2 * time.Minute),
		},
		{
			ID:        "b",
			UserID:    "u2",
			Kind:      "Eruption",
			Volcano:   "fuji",
			Inputs:    map[string]string{"vei": "3"},
			ModelID:   "eruption_gb",
			Status:    models.StatusError,
			ErrorKind: "lookup",
			Error:     "volcano not found",
			LatencyMS: 1,
			CreatedAt: now.Add(-time.Minute),
		},
		{
			ID:        "c",
			UserID:    "u1",
			Kind:      "Event",
			Volcano:   "etna",
			Inputs:    map[string]string{"explosive": "No", "continuous": "No"},
			Features:  []float64{0, 0, 3357},
			ModelID:   "event_gb",
			Status:    models.StatusOK,
			Points:    120,
			Cached:    true,
			LatencyMS: 2,
			CreatedAt: now,
		},
	}
	for _, rec := range records {
		require.NoError(t, c.InsertPlotRecord(ctx, rec))
	}

	all, err := c.ListPlotRecords(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	latest := all[0]
	assert.Equal(t, map[string]string{"explosive": "No", "continuous": "No"}, latest.Inputs)
	assert.Equal(t, []float64{0, 0, 3357}, latest.Features)
	assert.True(t, latest.Cached)
	assert.True(t, now.Equal(latest.CreatedAt))

	failed := all[1]
	assert.Equal(t, models.StatusError, failed.Status)
	assert.Equal(t, "lookup", failed.ErrorKind)
	assert.Nil(t, failed.Features)

	mine, err := c.ListPlotRecords(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	limited, err := c.ListPlotRecords(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := c.KindStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.KindStats{
		{Kind: "Eruption", Total: 1, Failed: 1, AvgLatencyMS: 1},
		{Kind: "Event", Total: 2, Failed: 0, AvgLatencyMS: 3},
	}, stats)

	pruned, err := c.DeleteOlderThan(ctx, now.Add(-90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestClient_DuplicateID(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	rec := &models.PlotRecord{ID: "a", Kind: "Event", Volcano: "etna", ModelID: "event_gb", Status: models.StatusOK, CreatedAt: time.Now()}

	require.NoError(t, c.InsertPlotRecord(ctx, rec))
	assert.Error(t, c.InsertPlotRecord(ctx, rec))
}
