package sync

import (
	"strings"
	"time"

	"erp-sync-service/internal/config"
)

// refFields are normalised to strings so numeric staging keys match API-supplied ones.
var refFields = []string{"external_id", "external_source", "job_external_id", "job_external_source", "job_id"}

// toCandidate converts one staging row into a candidate. Columns listed in the
// table's rename map take the mapped field name; the rest pass through.
// external_source defaults to the staging source.
func toCandidate(row map[string]any, table config.StagingTable, source string) Candidate {
	renames := make(map[string]string, len(table.Columns))
	for from, to := range table.Columns {
		renames[strings.ToLower(from)] = to
	}

	c := make(Candidate, len(row)+1)
	for col, v := range row {
		field := col
		if to, ok := renames[strings.ToLower(col)]; ok {
			field = to
		}
		c[field] = stagingValue(v)
	}

	for _, f := range refFields {
		if c.present(f) {
			c[f] = c.str(f)
		}
	}
	if !c.present("external_source") {
		c["external_source"] = source
	}
	return c
}

func stagingValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}
