package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
)

const (
	ImportCompleted = "completed"
	ImportPartial   = "partial"
	ImportFailed    = "failed"
)

// DefaultHistoryPage is the page size when the caller gives none.
const DefaultHistoryPage = 20

func importStatus(s *ExecuteSummary) string {
	switch {
	case s.Errors == 0:
		return ImportCompleted
	case s.Created+s.Updated+s.Skipped > 0:
		return ImportPartial
	default:
		return ImportFailed
	}
}

func firstError(s *ExecuteSummary) string {
	for _, r := range s.Results {
		if r.Status == StatusError {
			return r.Error
		}
	}
	return ""
}

// recordImportLog appends the batch to the audit trail. Failures are logged, never returned.
func (e *Engine) recordImportLog(ctx context.Context, st store.Store, d descriptor, cands []Candidate, s *ExecuteSummary, startedAt time.Time) {
	completedAt := e.now()
	entry := store.ImportLog{
		EntityType:   string(d.entity),
		Source:       strings.Join(distinctSources(cands), ","),
		Status:       importStatus(s),
		Total:        s.Total,
		Created:      s.Created,
		Updated:      s.Updated,
		Skipped:      s.Skipped,
		Errors:       s.Errors,
		ErrorMessage: firstError(s),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
	}
	row := entry.Row()
	row["created_at"] = completedAt

	if _, err := st.Insert(ctx, store.TableImportLogs, row); err != nil {
		logger.Log.Warn("Failed to record import log",
			zap.String("entity_type", string(d.entity)),
			zap.Error(err),
		)
	}
}

type HistoryQuery struct {
	EntityType string
	Source     string
	Limit      int
	Offset     int
}

// HistoryStats summarises the returned page only.
type HistoryStats struct {
	TotalSyncs   int `json:"total_syncs"`
	Successful   int `json:"successful"`
	Partial      int `json:"partial"`
	Failed       int `json:"failed"`
	TotalCreated int `json:"total_created"`
	TotalUpdated int `json:"total_updated"`
}

type HistoryResponse struct {
	Stats   HistoryStats      `json:"stats"`
	History []store.ImportLog `json:"history"`
}

// History returns the most recent import log entries, newest first.
func (e *Engine) History(ctx context.Context, st store.Store, q HistoryQuery) (*HistoryResponse, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryPage
	}
	if limit > e.historyLimit {
		limit = e.historyLimit
	}

	var filters []store.Filter
	if q.EntityType != "" {
		entityType := q.EntityType
		if parsed, err := ParseEntityType(entityType); err == nil {
			entityType = string(parsed)
		}
		filters = append(filters, store.Eq("entity_type", entityType))
	}
	if q.Source != "" {
		filters = append(filters, store.Eq("source", q.Source))
	}

	rows, err := st.Select(ctx, store.Query{
		Table:   store.TableImportLogs,
		Filters: filters,
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
		Offset:  q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read import history: %w", err)
	}

	resp := &HistoryResponse{History: make([]store.ImportLog, 0, len(rows))}
	for _, row := range rows {
		entry := store.ImportLogFromRow(row)
		resp.History = append(resp.History, entry)

		resp.Stats.TotalSyncs++
		switch entry.Status {
		case ImportCompleted:
			resp.Stats.Successful++
		case ImportPartial:
			resp.Stats.Partial++
		case ImportFailed:
			resp.Stats.Failed++
		}
		resp.Stats.TotalCreated += entry.Created
		resp.Stats.TotalUpdated += entry.Updated
	}
	return resp, nil
}
