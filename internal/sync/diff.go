package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/fingerprint"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/metrics"
	"erp-sync-service/internal/store"
)

// Diff previews what Execute would do for every entity type in req. It never writes.
func (e *Engine) Diff(ctx context.Context, st store.Store, req Request) (*DiffResponse, error) {
	resp := &DiffResponse{}
	for _, entity := range entityOrder {
		cands := req.candidates(entity)
		if cands == nil {
			continue
		}
		summary, err := e.DiffBatch(ctx, st, entity, cands)
		if err != nil {
			return nil, err
		}
		resp.set(entity, summary)
	}
	return resp, nil
}

// DiffBatch classifies each candidate as create, update, unchanged or error.
func (e *Engine) DiffBatch(ctx context.Context, st store.Store, entity EntityType, cands []Candidate) (*DiffSummary, error) {
	d, err := descriptorFor(entity)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	index, err := prefetch(ctx, st, d.table, candidateRefs(cands))
	if err != nil {
		return nil, err
	}

	summary := &DiffSummary{Total: len(cands), Records: make([]RecordResult, 0, len(cands))}
	for _, c := range cands {
		summary.add(e.classify(d, index, c))
	}

	metrics.ObserveBatch("diff", string(entity), map[string]int{
		string(StatusCreate):    summary.ToCreate,
		string(StatusUpdate):    summary.ToUpdate,
		string(StatusUnchanged): summary.Unchanged,
		string(StatusError):     summary.Errors,
	}, time.Since(start))

	logger.Log.Debug("Diff batch completed",
		zap.String("entity_type", string(entity)),
		zap.Int("total", summary.Total),
		zap.Int("to_create", summary.ToCreate),
		zap.Int("to_update", summary.ToUpdate),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// classify records its own outcome in index so a repeated reference later in
// the batch is compared against this candidate, as Execute would.
func (e *Engine) classify(d descriptor, index recordIndex, c Candidate) RecordResult {
	if err := d.validate(c); err != nil {
		return failed(c, KindValidation, err)
	}

	fp := e.fingerprint(c)
	ref := c.ref()
	result := RecordResult{ExternalID: ref.ID, ExternalSource: ref.Source}

	existing, ok := index[ref]
	switch {
	case !ok:
		result.Status = StatusCreate
	case !fingerprint.HasChanged(existing.Fingerprint, fp):
		result.Status = StatusUnchanged
		result.ID = existing.ID
	default:
		result.Status = StatusUpdate
		result.ID = existing.ID
	}
	index[ref] = existingRecord{ID: existing.ID, Fingerprint: fp}
	return result
}
