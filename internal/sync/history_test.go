package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/store"
)

func TestImportLogRecorded(t *testing.T) {
	ctx := context.Background()
	st := newTenantStore()
	engine := newTestEngine()

	_, err := engine.Execute(ctx, st, Request{Jobs: []Candidate{
		job("SAP", "E1", "A"),
		job("MRP", "E2", "B"),
		job("SAP", "E3", ""),
	}})
	require.NoError(t, err)

	rows := rowsOf(t, st, store.TableImportLogs)
	require.Len(t, rows, 1)
	entry := store.ImportLogFromRow(rows[0])
	assert.Equal(t, "job", entry.EntityType)
	assert.Equal(t, "MRP,SAP", entry.Source)
	assert.Equal(t, ImportPartial, entry.Status)
	assert.Equal(t, 3, entry.Total)
	assert.Equal(t, 2, entry.Created)
	assert.Equal(t, 1, entry.Errors)
	assert.Equal(t, "Missing required fields", entry.ErrorMessage)
	assert.True(t, entry.CompletedAt.After(entry.StartedAt))
}

func TestImportLogDisabled(t *testing.T) {
	ctx := context.Background()
	st := newTenantStore()

	_, err := newTestEngine().Execute(ctx, st, Request{
		Jobs:    []Candidate{job("SAP", "E1", "A")},
		Options: Options{RecordHistory: Bool(false)},
	})
	require.NoError(t, err)
	assert.Empty(t, rowsOf(t, st, store.TableImportLogs))
}

func TestImportLogFailureIsNonFatal(t *testing.T) {
	st := &failingStore{Store: newTenantStore(), failTable: store.TableImportLogs, err: errBoom}

	resp, err := newTestEngine().Execute(context.Background(), st, Request{Jobs: []Candidate{job("SAP", "E1", "A")}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Jobs.Created)
	assert.Equal(t, 0, resp.Jobs.Errors)
}

func TestImportStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary ExecuteSummary
		want    string
	}{
		{"no errors", ExecuteSummary{Created: 1, Skipped: 2}, ImportCompleted},
		{"nothing to do", ExecuteSummary{}, ImportCompleted},
		{"some errors", ExecuteSummary{Updated: 1, Errors: 1}, ImportPartial},
		{"only errors", ExecuteSummary{Errors: 3}, ImportFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, importStatus(&tt.summary))
		})
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	st := newTenantStore()
	engine := newTestEngine(WithHistoryLimit(3))

	// completed job batch
	_, err := engine.Execute(ctx, st, Request{Jobs: []Candidate{job("SAP", "J1", "A"), job("SAP", "J2", "B")}})
	require.NoError(t, err)
	// failed part batch
	_, err = engine.Execute(ctx, st, Request{Parts: []Candidate{part("SAP", "P1", "X", "J404")}})
	require.NoError(t, err)
	// partial resource batch
	_, err = engine.Execute(ctx, st, Request{Resources: []Candidate{
		resource("MRP", "R1", "Mill", "machine"),
		resource("MRP", "R2", "Lathe", ""),
	}})
	require.NoError(t, err)
	// completed job update
	_, err = engine.Execute(ctx, st, Request{Jobs: []Candidate{job("SAP", "J1", "A2")}})
	require.NoError(t, err)

	t.Run("newest first and capped", func(t *testing.T) {
		resp, err := engine.History(ctx, st, HistoryQuery{Limit: 100})
		require.NoError(t, err)
		require.Len(t, resp.History, 3)
		assert.Equal(t, "job", resp.History[0].EntityType)
		assert.Equal(t, 1, resp.History[0].Updated)
		assert.Equal(t, "resource", resp.History[1].EntityType)
		assert.Equal(t, "part", resp.History[2].EntityType)

		assert.Equal(t, HistoryStats{
			TotalSyncs:   3,
			Successful:   1,
			Partial:      1,
			Failed:       1,
			TotalCreated: 1,
			TotalUpdated: 1,
		}, resp.Stats)
	})

	t.Run("filter by entity type", func(t *testing.T) {
		resp, err := engine.History(ctx, st, HistoryQuery{EntityType: "jobs"})
		require.NoError(t, err)
		require.Len(t, resp.History, 2)
		assert.Equal(t, 2, resp.Stats.Successful)
		assert.Equal(t, 2, resp.Stats.TotalCreated)
		assert.Equal(t, 1, resp.Stats.TotalUpdated)
	})

	t.Run("filter by source", func(t *testing.T) {
		resp, err := engine.History(ctx, st, HistoryQuery{Source: "MRP"})
		require.NoError(t, err)
		require.Len(t, resp.History, 1)
		assert.Equal(t, ImportPartial, resp.History[0].Status)
	})

	t.Run("offset", func(t *testing.T) {
		resp, err := engine.History(ctx, st, HistoryQuery{Limit: 2, Offset: 3})
		require.NoError(t, err)
		require.Len(t, resp.History, 1)
		assert.Equal(t, "job", resp.History[0].EntityType)
		assert.Equal(t, 2, resp.History[0].Created)
	})

	t.Run("empty", func(t *testing.T) {
		resp, err := engine.History(ctx, newTenantStore(), HistoryQuery{})
		require.NoError(t, err)
		assert.Empty(t, resp.History)
		assert.Equal(t, HistoryStats{}, resp.Stats)
	})
}
