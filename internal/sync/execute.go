package sync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/events"
	"erp-sync-service/internal/fingerprint"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/metrics"
	"erp-sync-service/internal/store"
)

// Execute creates, updates or skips every candidate in req. Entity types run
// in job, part, resource order. Record-level failures are reported in the
// summaries; only a failed prefetch fails the call.
func (e *Engine) Execute(ctx context.Context, st store.Store, req Request) (*ExecuteResponse, error) {
	resp := &ExecuteResponse{}
	for _, entity := range entityOrder {
		cands := req.candidates(entity)
		if cands == nil {
			continue
		}
		summary, err := e.ExecuteBatch(ctx, st, req.TenantID, entity, cands, req.Options)
		if err != nil {
			return nil, err
		}
		resp.set(entity, summary)
	}
	return resp, nil
}

// ExecuteBatch runs one entity type's candidates sequentially in input order.
func (e *Engine) ExecuteBatch(ctx context.Context, st store.Store, tenantID string, entity EntityType, cands []Candidate, opts Options) (*ExecuteSummary, error) {
	d, err := descriptorFor(entity)
	if err != nil {
		return nil, err
	}
	cfg := opts.resolve()
	start := time.Now()
	startedAt := e.now()

	index, err := prefetch(ctx, st, d.table, candidateRefs(cands))
	if err != nil {
		return nil, err
	}
	var jobs recordIndex
	if d.parentJob {
		if jobs, err = prefetch(ctx, st, store.TableJobs, parentRefs(cands)); err != nil {
			return nil, err
		}
	}

	summary := &ExecuteSummary{Total: len(cands), Results: make([]RecordResult, 0, len(cands))}
	for _, c := range cands {
		result := e.apply(ctx, st, d, index, jobs, c, cfg)
		summary.add(result)

		if result.Status != StatusError {
			continue
		}
		logger.Log.Debug("Sync record failed",
			zap.String("entity_type", string(entity)),
			zap.String("external_source", result.ExternalSource),
			zap.String("external_id", result.ExternalID),
			zap.String("kind", string(result.ErrorKind)),
			zap.String("error", result.Error),
		)
		if !cfg.continueOnError {
			summary.Stopped = len(summary.Results) < len(cands)
			break
		}
	}

	if cfg.recordHistory && len(cands) > 0 {
		e.recordImportLog(ctx, st, d, cands, summary, startedAt)
	}
	e.publishBatch(ctx, tenantID, d, cands, summary)
	metrics.ObserveBatch("execute", string(entity), summary.statusCounts(), time.Since(start))

	logger.Log.Info("Sync batch completed",
		zap.String("tenant_id", tenantID),
		zap.String("entity_type", string(entity)),
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
		zap.Bool("stopped", summary.Stopped),
	)
	return summary, nil
}

func (e *Engine) apply(ctx context.Context, st store.Store, d descriptor, index, jobs recordIndex, c Candidate, cfg settings) RecordResult {
	if err := d.validate(c); err != nil {
		return failed(c, KindValidation, err)
	}

	var jobID string
	if d.parentJob {
		id, ok := resolveParent(c, jobs)
		if !ok {
			return failed(c, KindResolution, ErrUnresolvedParent)
		}
		jobID = id
	}

	fp := e.fingerprint(c)
	ref := c.ref()
	result := RecordResult{ExternalID: ref.ID, ExternalSource: ref.Source}
	now := e.now()

	if existing, ok := index[ref]; ok {
		if cfg.skipUnchanged && !fingerprint.HasChanged(existing.Fingerprint, fp) {
			result.Status = StatusSkipped
			result.ID = existing.ID
			return result
		}

		changes := d.updateRow(c, fp, now)
		if d.parentJob {
			changes["job_id"] = jobID
		}
		if _, err := st.Update(ctx, d.table, existing.ID, changes); err != nil {
			return failed(c, KindStore, err)
		}
		index[ref] = existingRecord{ID: existing.ID, Fingerprint: fp}
		result.Status = StatusUpdated
		result.ID = existing.ID
		return result
	}

	fields := d.insertRow(c, fp, now)
	if d.parentJob {
		fields["job_id"] = jobID
	}
	row, err := st.Insert(ctx, d.table, fields)
	if err != nil {
		return failed(c, KindStore, err)
	}
	index[ref] = existingRecord{ID: row.String("id"), Fingerprint: fp}
	result.Status = StatusCreated
	result.ID = row.String("id")
	return result
}

// resolveParent prefers a supplied job_id over the job_external_id lookup.
func resolveParent(c Candidate, jobs recordIndex) (string, bool) {
	if c.present("job_id") {
		return c.str("job_id"), true
	}
	ref := parentRef(c)
	if !ref.complete() {
		return "", false
	}
	rec, ok := jobs[ref]
	if !ok || rec.ID == "" {
		return "", false
	}
	return rec.ID, true
}

func (e *Engine) publishBatch(ctx context.Context, tenantID string, d descriptor, cands []Candidate, s *ExecuteSummary) {
	event := &events.BatchEvent{
		EventType:  events.EventBatchCompleted,
		TenantID:   tenantID,
		EntityType: string(d.entity),
		Sources:    distinctSources(cands),
		Total:      s.Total,
		Created:    s.Created,
		Updated:    s.Updated,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		Stopped:    s.Stopped,
		Timestamp:  e.now(),
	}
	for _, r := range s.Results {
		switch r.Status {
		case StatusCreated:
			event.CreatedIDs = append(event.CreatedIDs, r.ID)
		case StatusUpdated:
			event.UpdatedIDs = append(event.UpdatedIDs, r.ID)
		}
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		logger.Log.Warn("Failed to publish batch event",
			zap.String("entity_type", string(d.entity)),
			zap.Error(err),
		)
	}
}

// distinctSources returns the sorted non-empty external sources in cands.
func distinctSources(cands []Candidate) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range cands {
		s := c.ExternalSource()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
