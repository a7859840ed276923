package sync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type EntityType string

const (
	EntityJob      EntityType = "job"
	EntityPart     EntityType = "part"
	EntityResource EntityType = "resource"
)

// entityOrder is the processing order within one request. Parts follow jobs so
// they can reference jobs created earlier in the same request.
var entityOrder = []EntityType{EntityJob, EntityPart, EntityResource}

// ParseEntityType accepts singular or plural names, case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "job", "jobs":
		return EntityJob, nil
	case "part", "parts":
		return EntityPart, nil
	case "resource", "resources":
		return EntityResource, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// Candidate is one caller-supplied record proposed for create or update.
// Unknown keys are carried into the fingerprint; metadata is passed through as-is.
type Candidate map[string]any

func (c Candidate) ExternalSource() string { return c.str("external_source") }

func (c Candidate) ExternalID() string { return c.str("external_id") }

func (c Candidate) ref() externalRef {
	return externalRef{Source: c.ExternalSource(), ID: c.ExternalID()}
}

// str reads a field as a string. JSON numbers with no fractional part render as integers.
func (c Candidate) str(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// present reports whether key holds a usable value. Null and empty strings are missing.
func (c Candidate) present(key string) bool {
	switch v := c[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}

// Options controls Execute. Nil fields take their defaults.
type Options struct {
	SkipUnchanged   *bool `json:"skip_unchanged,omitempty"`
	ContinueOnError *bool `json:"continue_on_error,omitempty"`
	RecordHistory   *bool `json:"record_history,omitempty"`
}

type settings struct {
	skipUnchanged   bool
	continueOnError bool
	recordHistory   bool
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (o Options) resolve() settings {
	return settings{
		skipUnchanged:   boolOr(o.SkipUnchanged, true),
		continueOnError: boolOr(o.ContinueOnError, true),
		recordHistory:   boolOr(o.RecordHistory, true),
	}
}

// Bool returns a pointer to v, for building Options.
func Bool(v bool) *bool { return &v }

// Request is one diff or execute invocation. A nil slice means the entity type is absent.
type Request struct {
	TenantID  string      `json:"-"`
	Jobs      []Candidate `json:"jobs,omitempty"`
	Parts     []Candidate `json:"parts,omitempty"`
	Resources []Candidate `json:"resources,omitempty"`
	Options   Options     `json:"options"`
}

func (r Request) candidates(e EntityType) []Candidate {
	switch e {
	case EntityJob:
		return r.Jobs
	case EntityPart:
		return r.Parts
	case EntityResource:
		return r.Resources
	}
	return nil
}

type Status string

const (
	// diff outcomes
	StatusCreate    Status = "create"
	StatusUpdate    Status = "update"
	StatusUnchanged Status = "unchanged"

	// execute outcomes
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"

	StatusError Status = "error"
)

// ErrorKind classifies a record-level failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindResolution ErrorKind = "resolution"
	KindStore      ErrorKind = "store"
)

// RecordResult is the outcome for one candidate.
type RecordResult struct {
	ExternalID     string    `json:"external_id"`
	ExternalSource string    `json:"external_source,omitempty"`
	Status         Status    `json:"status"`
	ID             string    `json:"id,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
}

func failed(c Candidate, kind ErrorKind, err error) RecordResult {
	return RecordResult{
		ExternalID:     c.ExternalID(),
		ExternalSource: c.ExternalSource(),
		Status:         StatusError,
		Error:          err.Error(),
		ErrorKind:      kind,
	}
}

type DiffSummary struct {
	Total     int            `json:"total"`
	ToCreate  int            `json:"to_create"`
	ToUpdate  int            `json:"to_update"`
	Unchanged int            `json:"unchanged"`
	Errors    int            `json:"errors"`
	Records   []RecordResult `json:"records"`
}

func (s *DiffSummary) add(r RecordResult) {
	switch r.Status {
	case StatusCreate:
		s.ToCreate++
	case StatusUpdate:
		s.ToUpdate++
	case StatusUnchanged:
		s.Unchanged++
	case StatusError:
		s.Errors++
	}
	s.Records = append(s.Records, r)
}

type ExecuteSummary struct {
	Total   int            `json:"total"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Errors  int            `json:"errors"`
	Stopped bool           `json:"stopped,omitempty"`
	Results []RecordResult `json:"results"`
}

func (s *ExecuteSummary) add(r RecordResult) {
	switch r.Status {
	case StatusCreated:
		s.Created++
	case StatusUpdated:
		s.Updated++
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Errors++
	}
	s.Results = append(s.Results, r)
}

func (s *ExecuteSummary) statusCounts() map[string]int {
	return map[string]int{
		string(StatusCreated): s.Created,
		string(StatusUpdated): s.Updated,
		string(StatusSkipped): s.Skipped,
		string(StatusError):   s.Errors,
	}
}

// DiffResponse holds one summary per entity type present in the request.
type DiffResponse struct {
	Jobs      *DiffSummary `json:"jobs,omitempty"`
	Parts     *DiffSummary `json:"parts,omitempty"`
	Resources *DiffSummary `json:"resources,omitempty"`
}

func (r *DiffResponse) set(e EntityType, s *DiffSummary) {
	switch e {
	case EntityJob:
		r.Jobs = s
	case EntityPart:
		r.Parts = s
	case EntityResource:
		r.Resources = s
	}
}

// ExecuteResponse holds one summary per entity type present in the request.
type ExecuteResponse struct {
	Jobs      *ExecuteSummary `json:"jobs,omitempty"`
	Parts     *ExecuteSummary `json:"parts,omitempty"`
	Resources *ExecuteSummary `json:"resources,omitempty"`
}

func (r *ExecuteResponse) set(e EntityType, s *ExecuteSummary) {
	switch e {
	case EntityJob:
		r.Jobs = s
	case EntityPart:
		r.Parts = s
	case EntityResource:
		r.Resources = s
	}
}

// FeedEvent is one staging row change bound for the worker pool.
type FeedEvent struct {
	Entity     EntityType
	Table      string
	Candidate  Candidate
	Timestamp  uint32
	BinlogFile string
	BinlogPos  uint32
}

func (e FeedEvent) String() string {
	return fmt.Sprintf("[%s] %s %s:%s", e.Entity, e.Table, e.Candidate.ExternalSource(), e.Candidate.ExternalID())
}
