package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffAgainstEmptyStore(t *testing.T) {
	engine := newTestEngine()

	resp, err := engine.Diff(context.Background(), newTenantStore(), Request{
		Jobs: []Candidate{job("SAP", "E1", "J-100")},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Jobs)
	assert.Equal(t, 1, resp.Jobs.Total)
	assert.Equal(t, 1, resp.Jobs.ToCreate)
	assert.Equal(t, 0, resp.Jobs.ToUpdate)
	assert.Equal(t, 0, resp.Jobs.Unchanged)
	assert.Equal(t, 0, resp.Jobs.Errors)
	assert.Equal(t, []RecordResult{{ExternalID: "E1", ExternalSource: "SAP", Status: StatusCreate}}, resp.Jobs.Records)

	assert.Nil(t, resp.Parts)
	assert.Nil(t, resp.Resources)
}

func TestDiffClassification(t *testing.T) {
	ctx := context.Background()
	st := newTenantStore()
	engine := newTestEngine()

	_, err := engine.Execute(ctx, st, Request{Jobs: []Candidate{job("SAP", "1", "A")}})
	require.NoError(t, err)

	tests := []struct {
		name      string
		candidate Candidate
		want      Status
	}{
		{"same attributes", job("SAP", "1", "A"), StatusUnchanged},
		{"changed attribute", job("SAP", "1", "B"), StatusUpdate},
		{"new external id", job("SAP", "2", "A"), StatusCreate},
		{"same id other source", job("ORACLE", "1", "A"), StatusCreate},
		{"system fields ignored", Candidate{
			"external_source": "SAP", "external_id": "1", "job_number": "A",
			"id": "whatever", "updated_at": "2020-01-01", "sync_hash": "stale",
		}, StatusUnchanged},
		{"missing job number", Candidate{"external_source": "SAP", "external_id": "1"}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := engine.DiffBatch(ctx, st, EntityJob, []Candidate{tt.candidate})
			require.NoError(t, err)
			require.Len(t, summary.Records, 1)
			assert.Equal(t, tt.want, summary.Records[0].Status)
		})
	}
}

func TestDiffNeverWrites(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: newTenantStore()}
	engine := newTestEngine()

	resp, err := engine.Diff(ctx, st, Request{
		Jobs:      []Candidate{job("SAP", "1", "A")},
		Parts:     []Candidate{part("SAP", "P1", "X", "1")},
		Resources: []Candidate{resource("SAP", "R1", "Mill", "machine")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Jobs.ToCreate)
	assert.Equal(t, 1, resp.Parts.ToCreate)
	assert.Equal(t, 1, resp.Resources.ToCreate)
	assert.Equal(t, 0, st.inserts)
	assert.Equal(t, 0, st.updates)
	assert.Empty(t, rowsOf(t, st, "jobs"))
}

func TestDiffMissingFieldsContinue(t *testing.T) {
	engine := newTestEngine()

	summary, err := engine.DiffBatch(context.Background(), newTenantStore(), EntityResource, []Candidate{
		resource("SAP", "R1", "Mill", ""),
		resource("SAP", "R2", "Lathe", "machine"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.ToCreate)
	assert.Equal(t, "Missing required fields", summary.Records[0].Error)
	assert.Equal(t, KindValidation, summary.Records[0].ErrorKind)
	assert.Equal(t, "R1", summary.Records[0].ExternalID)
}

func TestDiffRepeatedReferenceInBatch(t *testing.T) {
	engine := newTestEngine()

	summary, err := engine.DiffBatch(context.Background(), newTenantStore(), EntityJob, []Candidate{
		job("SAP", "1", "A"),
		job("SAP", "1", "A"),
		job("SAP", "1", "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCreate, summary.Records[0].Status)
	assert.Equal(t, StatusUnchanged, summary.Records[1].Status)
	assert.Equal(t, StatusUpdate, summary.Records[2].Status)
}

func TestDiffUnknownEntityType(t *testing.T) {
	_, err := newTestEngine().DiffBatch(context.Background(), newTenantStore(), EntityType("order"), nil)
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestDiffPrefetchFailurePropagates(t *testing.T) {
	st := &brokenStore{Store: newTenantStore(), err: errBoom}

	_, err := newTestEngine().Diff(context.Background(), st, Request{Jobs: []Candidate{job("SAP", "1", "A")}})
	assert.ErrorIs(t, err, errBoom)
}
