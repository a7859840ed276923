package sync

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"erp-sync-service/internal/store"
)

// descriptor parameterises the diff and execute algorithms for one entity type.
type descriptor struct {
	entity        EntityType
	table         string
	required      []string
	defaultStatus string
	fields        []string // domain columns copied from the candidate
	intFields     []string
	insertDefault store.Row
	parentJob     bool
}

var descriptors = map[EntityType]descriptor{
	EntityJob: {
		entity:        EntityJob,
		table:         store.TableJobs,
		required:      []string{"external_id", "external_source", "job_number"},
		defaultStatus: "not_started",
		fields:        []string{"job_number", "customer", "due_date", "priority", "status", "notes", "metadata"},
		intFields:     []string{"priority"},
	},
	EntityPart: {
		entity:        EntityPart,
		table:         store.TableParts,
		required:      []string{"external_id", "external_source", "part_number"},
		defaultStatus: "not_started",
		fields:        []string{"part_number", "material", "quantity", "description", "status", "notes", "metadata"},
		intFields:     []string{"quantity"},
		parentJob:     true,
	},
	EntityResource: {
		entity:        EntityResource,
		table:         store.TableResources,
		required:      []string{"external_id", "external_source", "name", "type"},
		defaultStatus: "available",
		fields:        []string{"name", "type", "description", "identifier", "location", "status", "active", "metadata"},
		insertDefault: store.Row{"active": true},
	},
}

func descriptorFor(e EntityType) (descriptor, error) {
	d, ok := descriptors[e]
	if !ok {
		return descriptor{}, ErrUnknownEntityType
	}
	return d, nil
}

func (d descriptor) validate(c Candidate) error {
	for _, f := range d.required {
		if !c.present(f) {
			return ErrMissingRequiredFields
		}
	}
	return nil
}

// attributes copies the candidate's domain fields into a store row.
func (d descriptor) attributes(c Candidate) store.Row {
	row := store.Row{}
	for _, f := range d.fields {
		v, ok := c[f]
		if !ok {
			continue
		}
		row[f] = v
	}
	for _, f := range d.intFields {
		if v, ok := row[f]; ok {
			row[f] = coerceInt(v)
		}
	}
	return row
}

// insertRow builds the row for a new record.
func (d descriptor) insertRow(c Candidate, fp string, now time.Time) store.Row {
	row := d.attributes(c)
	for k, v := range d.insertDefault {
		if row[k] == nil {
			row[k] = v
		}
	}
	if s, _ := row["status"].(string); s == "" {
		row["status"] = d.defaultStatus
	}
	row["external_source"] = c.ExternalSource()
	row["external_id"] = c.ExternalID()
	row["sync_hash"] = fp
	row["synced_at"] = now
	return row
}

// updateRow builds the changes for an existing record.
func (d descriptor) updateRow(c Candidate, fp string, now time.Time) store.Row {
	row := d.attributes(c)
	row["sync_hash"] = fp
	row["synced_at"] = now
	row["updated_at"] = now
	return row
}

// coerceInt turns integral JSON numbers and numeric strings into ints. Anything else is returned unchanged.
func coerceInt(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) {
			return int64(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return v
}
