package store

import (
	"context"
)

// Store is the relational capability the sync engine runs against. Every
// implementation is scoped to a single tenant and hides soft-deleted rows.
type Store interface {
	// Select returns rows of q.Table matching every filter.
	Select(ctx context.Context, q Query) ([]Row, error)

	// Insert writes a new row and returns it with id, tenant_id and timestamps assigned.
	Insert(ctx context.Context, table string, fields Row) (Row, error)

	// Update applies fields to the live row with the given id and returns the stored row.
	// Returns ErrNotFound when no such row exists.
	Update(ctx context.Context, table, id string, fields Row) (Row, error)

	// Delete soft-deletes the row. Tables without soft delete are not supported.
	Delete(ctx context.Context, table, id string) error

	// General
	Close() error
}

// Provider hands out tenant-scoped views of one underlying store.
type Provider interface {
	ForTenant(tenantID string) Store
}

// Op is a filter comparison.
type Op string

const (
	OpEq      Op = "eq"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In matches any of values. An empty set matches nothing.
func In[T any](column string, values []T) Filter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vals}
}

func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotNull}
}

type Query struct {
	Table   string
	Columns []string // empty selects all columns
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// matchesNothing reports whether an empty In filter makes the query trivially empty.
func (q Query) matchesNothing() bool {
	for _, f := range q.Filters {
		if f.Op == OpIn {
			if vals, _ := f.Value.([]any); len(vals) == 0 {
				return true
			}
		}
	}
	return false
}
