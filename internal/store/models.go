package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	TableJobs       = "jobs"
	TableParts      = "parts"
	TableResources  = "resources"
	TableImportLogs = "import_logs"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate key value violates unique constraint")
	ErrUnknownTable = errors.New("unknown table")
)

type tableSpec struct {
	softDelete  bool
	columns     map[string]bool
	jsonColumns map[string]bool
}

func columnSet(cols ...string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}

var systemColumns = []string{"id", "tenant_id", "created_at", "updated_at"}

var entityColumns = []string{"external_source", "external_id", "synced_at", "sync_hash", "deleted_at"}

var tables = map[string]tableSpec{
	TableJobs: {
		softDelete:  true,
		columns:     columnSet(append(append([]string{"job_number", "customer", "due_date", "priority", "status", "notes", "metadata"}, systemColumns...), entityColumns...)...),
		jsonColumns: columnSet("metadata"),
	},
	TableParts: {
		softDelete:  true,
		columns:     columnSet(append(append([]string{"job_id", "part_number", "material", "quantity", "description", "status", "notes", "metadata"}, systemColumns...), entityColumns...)...),
		jsonColumns: columnSet("metadata"),
	},
	TableResources: {
		softDelete:  true,
		columns:     columnSet(append(append([]string{"name", "type", "description", "identifier", "location", "status", "active", "metadata"}, systemColumns...), entityColumns...)...),
		jsonColumns: columnSet("metadata"),
	},
	TableImportLogs: {
		columns: columnSet(append([]string{"entity_type", "source", "status", "total", "created", "updated", "skipped", "errors", "error_message", "started_at", "completed_at"}, systemColumns...)...),
	},
}

func lookupTable(name string) (tableSpec, error) {
	spec, ok := tables[name]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return spec, nil
}

// checkColumns rejects columns the table does not have.
func (t tableSpec) checkColumns(table string, cols []string) error {
	for _, c := range cols {
		if !t.columns[c] {
			return fmt.Errorf("unknown column %q on %s", c, table)
		}
	}
	return nil
}

// Row is one record keyed by column name.
type Row map[string]any

// String returns the column as a string, or "" when absent or null.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the column as an int, or 0 when absent, null or unparseable.
func (r Row) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	default:
		return 0
	}
}

// Bool returns the column as a bool. Integer columns are true when non-zero.
func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Time returns the column as a time. Strings are parsed as RFC 3339 or SQL datetime.
func (r Row) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ImportLog is one append-only audit entry for a completed sync batch.
type ImportLog struct {
	ID           string    `json:"id"`
	EntityType   string    `json:"entity_type"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	Total        int       `json:"total"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Errors       int       `json:"errors"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Row converts the entry for Insert.
func (l ImportLog) Row() Row {
	row := Row{
		"entity_type":  l.EntityType,
		"source":       l.Source,
		"status":       l.Status,
		"total":        l.Total,
		"created":      l.Created,
		"updated":      l.Updated,
		"skipped":      l.Skipped,
		"errors":       l.Errors,
		"started_at":   l.StartedAt,
		"completed_at": l.CompletedAt,
	}
	if l.ErrorMessage != "" {
		row["error_message"] = l.ErrorMessage
	}
	return row
}

func ImportLogFromRow(r Row) ImportLog {
	return ImportLog{
		ID:           r.String("id"),
		EntityType:   r.String("entity_type"),
		Source:       r.String("source"),
		Status:       r.String("status"),
		Total:        r.Int("total"),
		Created:      r.Int("created"),
		Updated:      r.Int("updated"),
		Skipped:      r.Int("skipped"),
		Errors:       r.Int("errors"),
		ErrorMessage: r.String("error_message"),
		StartedAt:    r.Time("started_at"),
		CompletedAt:  r.Time("completed_at"),
		CreatedAt:    r.Time("created_at"),
	}
}
