package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same table set, tenant scoping,
// soft-delete visibility and external reference uniqueness as SQLStore.
type MemoryStore struct {
	data     *memoryData
	tenantID string
	now      func() time.Time
}

type memoryData struct {
	mu     sync.RWMutex
	tables map[string][]Row // insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     &memoryData{tables: make(map[string][]Row)},
		tenantID: "default",
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ForTenant(tenantID string) Store {
	scoped := *m
	scoped.tenantID = tenantID
	return &scoped
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) Select(_ context.Context, q Query) ([]Row, error) {
	spec, err := lookupTable(q.Table)
	if err != nil {
		return nil, err
	}
	if len(q.Columns) > 0 {
		if err := spec.checkColumns(q.Table, q.Columns); err != nil {
			return nil, err
		}
	}
	for _, f := range q.Filters {
		if err := spec.checkColumns(q.Table, []string{f.Column}); err != nil {
			return nil, err
		}
	}
	if q.matchesNothing() {
		return nil, nil
	}

	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	var matched []Row
	for _, row := range m.data.tables[q.Table] {
		if !m.visible(spec, row) {
			continue
		}
		ok := true
		for _, f := range q.Filters {
			if !matchFilter(row, f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 && q.Limit > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]Row, 0, len(matched))
	for _, row := range matched {
		out = append(out, project(row, q.Columns))
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, table string, fields Row) (Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	row := fields.Clone()
	now := m.now()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	row["tenant_id"] = m.tenantID
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}
	if err := spec.checkColumns(table, sortedKeys(row)); err != nil {
		return nil, err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	for _, existing := range m.data.tables[table] {
		if existing.String("id") == row.String("id") {
			return nil, fmt.Errorf("insert into %s: %w: id %s", table, ErrDuplicate, row.String("id"))
		}
		if spec.softDelete && sameExternalRef(existing, row) {
			return nil, fmt.Errorf("insert into %s: %w: (%s, %s, %s)", table, ErrDuplicate,
				row.String("tenant_id"), row.String("external_source"), row.String("external_id"))
		}
	}

	m.data.tables[table] = append(m.data.tables[table], row)
	return row.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, table, id string, fields Row) (Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	set := fields.Clone()
	delete(set, "id")
	delete(set, "tenant_id")
	delete(set, "created_at")
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = m.now()
	}
	if err := spec.checkColumns(table, sortedKeys(set)); err != nil {
		return nil, err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	for _, row := range m.data.tables[table] {
		if row.String("id") != id || !m.visible(spec, row) {
			continue
		}
		for k, v := range set {
			row[k] = v
		}
		return row.Clone(), nil
	}
	return nil, fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
}

func (m *MemoryStore) Delete(ctx context.Context, table, id string) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	if !spec.softDelete {
		return fmt.Errorf("%s does not support delete", table)
	}
	_, err = m.Update(ctx, table, id, Row{"deleted_at": m.now()})
	return err
}

func (m *MemoryStore) visible(spec tableSpec, row Row) bool {
	if row.String("tenant_id") != m.tenantID {
		return false
	}
	return !spec.softDelete || row["deleted_at"] == nil
}

// sameExternalRef mirrors the (tenant_id, external_source, external_id) unique key.
// As in SQL, rows with a null key part never collide.
func sameExternalRef(a, b Row) bool {
	if a["external_source"] == nil || a["external_id"] == nil || b["external_source"] == nil || b["external_id"] == nil {
		return false
	}
	return a.String("tenant_id") == b.String("tenant_id") &&
		a.String("external_source") == b.String("external_source") &&
		a.String("external_id") == b.String("external_id")
}

func project(row Row, cols []string) Row {
	if len(cols) == 0 {
		return row.Clone()
	}
	out := make(Row, len(cols))
	for _, c := range cols {
		out[c] = row[c]
	}
	return out
}

func matchFilter(row Row, f Filter) bool {
	v := row[f.Column]
	switch f.Op {
	case OpEq:
		return valuesEqual(v, f.Value)
	case OpIn:
		vals, _ := f.Value.([]any)
		for _, candidate := range vals {
			if valuesEqual(v, candidate) {
				return true
			}
		}
		return false
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders nil first, then numbers, times and strings by their natural order.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
