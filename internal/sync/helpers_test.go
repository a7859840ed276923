package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/events"
	"erp-sync-service/internal/store"
)

// countingStore counts reads and writes passing through to the wrapped store.
type countingStore struct {
	store.Store
	selects int
	inserts int
	updates int
}

func (s *countingStore) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	s.selects++
	return s.Store.Select(ctx, q)
}

func (s *countingStore) Insert(ctx context.Context, table string, fields store.Row) (store.Row, error) {
	s.inserts++
	return s.Store.Insert(ctx, table, fields)
}

func (s *countingStore) Update(ctx context.Context, table, id string, fields store.Row) (store.Row, error) {
	s.updates++
	return s.Store.Update(ctx, table, id, fields)
}

// failingStore fails inserts into failTable, and optionally only for one external id.
type failingStore struct {
	store.Store
	failTable string
	failID    string
	err       error
}

func (s *failingStore) Insert(ctx context.Context, table string, fields store.Row) (store.Row, error) {
	if table == s.failTable && (s.failID == "" || fields.String("external_id") == s.failID) {
		return nil, s.err
	}
	return s.Store.Insert(ctx, table, fields)
}

// racingStore inserts a conflicting row right after the first read of raceTable,
// as a concurrent sync would.
type racingStore struct {
	store.Store
	raceTable string
	row       store.Row
	done      bool
}

func (s *racingStore) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	rows, err := s.Store.Select(ctx, q)
	if err == nil && !s.done && q.Table == s.raceTable {
		s.done = true
		if _, err := s.Store.Insert(ctx, s.raceTable, s.row); err != nil {
			return nil, err
		}
	}
	return rows, err
}

// brokenStore fails every read.
type brokenStore struct {
	store.Store
	err error
}

func (s *brokenStore) Select(context.Context, store.Query) ([]store.Row, error) {
	return nil, s.err
}

type recordingPublisher struct {
	mu     gosync.Mutex
	events []*events.BatchEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.BatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// steppingClock advances one second per reading.
func steppingClock() func() time.Time {
	var mu gosync.Mutex
	t := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithClock(steppingClock())}, opts...)...)
}

func newTenantStore() store.Store {
	return store.NewMemoryStore().ForTenant("tenant-1")
}

func job(source, id, number string) Candidate {
	return Candidate{"external_source": source, "external_id": id, "job_number": number}
}

func part(source, id, number, jobExternalID string) Candidate {
	c := Candidate{"external_source": source, "external_id": id, "part_number": number}
	if jobExternalID != "" {
		c["job_external_id"] = jobExternalID
	}
	return c
}

func resource(source, id, name, kind string) Candidate {
	c := Candidate{"external_source": source, "external_id": id, "name": name}
	if kind != "" {
		c["type"] = kind
	}
	return c
}

func rowsOf(t *testing.T, st store.Store, table string, filters ...store.Filter) []store.Row {
	t.Helper()
	rows, err := st.Select(context.Background(), store.Query{Table: table, Filters: filters})
	require.NoError(t, err)
	return rows
}

var errBoom = errors.New("boom")
