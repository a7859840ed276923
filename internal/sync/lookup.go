package sync

import (
	"context"
	"fmt"

	"erp-sync-service/internal/store"
)

type LookupResult struct {
	Found          bool       `json:"found"`
	EntityType     EntityType `json:"entity_type"`
	ExternalSource string     `json:"external_source"`
	ExternalID     string     `json:"external_id"`
	Entity         store.Row  `json:"entity,omitempty"`
}

// Lookup finds one live record by external reference. Not found is a result, not an error.
func (e *Engine) Lookup(ctx context.Context, st store.Store, entity EntityType, source, externalID string) (*LookupResult, error) {
	d, err := descriptorFor(entity)
	if err != nil {
		return nil, err
	}
	if source == "" || externalID == "" {
		return nil, fmt.Errorf("%w: external_source and external_id", ErrMissingRequiredFields)
	}

	rows, err := st.Select(ctx, store.Query{
		Table:   d.table,
		Filters: []store.Filter{store.Eq("external_source", source), store.Eq("external_id", externalID)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s %s:%s: %w", entity, source, externalID, err)
	}

	result := &LookupResult{EntityType: entity, ExternalSource: source, ExternalID: externalID}
	if len(rows) > 0 {
		result.Found = true
		result.Entity = rows[0]
	}
	return result, nil
}

type BatchLookupSummary struct {
	Requested int `json:"requested"`
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
}

type BatchLookupResult struct {
	EntityType     EntityType         `json:"entity_type"`
	ExternalSource string             `json:"external_source"`
	Found          []store.Row        `json:"found"`
	NotFound       []string           `json:"not_found"`
	Summary        BatchLookupSummary `json:"summary"`
}

// BatchLookup partitions externalIDs into found records and missing ids,
// preserving input order. Repeated ids are reported once per occurrence.
func (e *Engine) BatchLookup(ctx context.Context, st store.Store, entity EntityType, source string, externalIDs []string) (*BatchLookupResult, error) {
	byID, err := e.loadByExternalID(ctx, st, entity, source, externalIDs, nil)
	if err != nil {
		return nil, err
	}

	result := &BatchLookupResult{
		EntityType:     entity,
		ExternalSource: source,
		Found:          []store.Row{},
		NotFound:       []string{},
	}
	for _, id := range externalIDs {
		if row, ok := byID[id]; ok {
			result.Found = append(result.Found, row)
		} else {
			result.NotFound = append(result.NotFound, id)
		}
	}
	result.Summary = BatchLookupSummary{
		Requested: len(externalIDs),
		Found:     len(result.Found),
		NotFound:  len(result.NotFound),
	}
	return result, nil
}

type ResolveSummary struct {
	Requested int `json:"requested"`
	Resolved  int `json:"resolved"`
	NotFound  int `json:"not_found"`
}

type ResolveResult struct {
	EntityType     EntityType        `json:"entity_type"`
	ExternalSource string            `json:"external_source"`
	Mappings       map[string]string `json:"mappings"`
	Unmapped       []string          `json:"unmapped"`
	Summary        ResolveSummary    `json:"summary"`
}

// Resolve maps external ids to internal ids. Repeated input ids are counted once.
func (e *Engine) Resolve(ctx context.Context, st store.Store, entity EntityType, source string, externalIDs []string) (*ResolveResult, error) {
	distinct := make([]string, 0, len(externalIDs))
	seen := map[string]bool{}
	for _, id := range externalIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}

	byID, err := e.loadByExternalID(ctx, st, entity, source, distinct, []string{"id", "external_id"})
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{
		EntityType:     entity,
		ExternalSource: source,
		Mappings:       map[string]string{},
		Unmapped:       []string{},
	}
	for _, id := range distinct {
		if row, ok := byID[id]; ok {
			result.Mappings[id] = row.String("id")
		} else {
			result.Unmapped = append(result.Unmapped, id)
		}
	}
	result.Summary = ResolveSummary{
		Requested: len(distinct),
		Resolved:  len(result.Mappings),
		NotFound:  len(result.Unmapped),
	}
	return result, nil
}

func (e *Engine) loadByExternalID(ctx context.Context, st store.Store, entity EntityType, source string, ids, columns []string) (map[string]store.Row, error) {
	d, err := descriptorFor(entity)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, fmt.Errorf("%w: external_source", ErrMissingRequiredFields)
	}
	if len(ids) == 0 {
		return map[string]store.Row{}, nil
	}

	rows, err := st.Select(ctx, store.Query{
		Table:   d.table,
		Columns: columns,
		Filters: []store.Filter{store.Eq("external_source", source), store.In("external_id", ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s from %s: %w", entity, source, err)
	}

	byID := make(map[string]store.Row, len(rows))
	for _, row := range rows {
		byID[row.String("external_id")] = row
	}
	return byID, nil
}
