package sync

import (
	"context"
	"fmt"
	"sort"

	"erp-sync-service/internal/store"
)

// externalRef identifies a record in its system of origin.
type externalRef struct {
	Source string
	ID     string
}

func (r externalRef) complete() bool {
	return r.Source != "" && r.ID != ""
}

type existingRecord struct {
	ID          string
	Fingerprint string
}

// recordIndex maps external references to live internal records.
type recordIndex map[externalRef]existingRecord

var indexColumns = []string{"id", "external_source", "external_id", "sync_hash"}

// prefetch loads the live records of table matching refs with one query per
// distinct source. Incomplete references are skipped; no refs means no query.
func prefetch(ctx context.Context, st store.Store, table string, refs []externalRef) (recordIndex, error) {
	index := recordIndex{}

	bySource := map[string][]string{}
	seen := map[externalRef]bool{}
	for _, ref := range refs {
		if !ref.complete() || seen[ref] {
			continue
		}
		seen[ref] = true
		bySource[ref.Source] = append(bySource[ref.Source], ref.ID)
	}
	if len(bySource) == 0 {
		return index, nil
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	for _, source := range sources {
		rows, err := st.Select(ctx, store.Query{
			Table:   table,
			Columns: indexColumns,
			Filters: []store.Filter{
				store.Eq("external_source", source),
				store.In("external_id", bySource[source]),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("prefetch %s for source %s: %w", table, source, err)
		}
		for _, row := range rows {
			ref := externalRef{Source: row.String("external_source"), ID: row.String("external_id")}
			index[ref] = existingRecord{ID: row.String("id"), Fingerprint: row.String("sync_hash")}
		}
	}
	return index, nil
}

func candidateRefs(cands []Candidate) []externalRef {
	refs := make([]externalRef, len(cands))
	for i, c := range cands {
		refs[i] = c.ref()
	}
	return refs
}

// parentRef is the job a part candidate points at by external reference.
// job_external_source defaults to the part's own source.
func parentRef(c Candidate) externalRef {
	source := c.str("job_external_source")
	if source == "" {
		source = c.ExternalSource()
	}
	return externalRef{Source: source, ID: c.str("job_external_id")}
}

// parentRefs collects the job references of parts that carry no resolved job_id.
func parentRefs(cands []Candidate) []externalRef {
	var refs []externalRef
	for _, c := range cands {
		if c.present("job_id") {
			continue
		}
		refs = append(refs, parentRef(c))
	}
	return refs
}
