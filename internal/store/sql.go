package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"erp-sync-service/internal/database"
	"erp-sync-service/internal/logger"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// SQLStore implements Store over MySQL, Postgres or SQLite.
type SQLStore struct {
	db       *sqlx.DB
	dbType   string
	flavor   sqlbuilder.Flavor
	tenantID string
	now      func() time.Time
}

func NewSQLStore(db *database.Database) *SQLStore {
	return &SQLStore{
		db:     db.DB,
		dbType: db.Config.Type,
		flavor: db.Flavor,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ForTenant returns a view of the store scoped to tenantID. The connection is shared.
func (s *SQLStore) ForTenant(tenantID string) Store {
	scoped := *s
	scoped.tenantID = tenantID
	return &scoped
}

// Close closes the shared connection. Closing any tenant view closes all of them.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ApplySchema creates missing tables for the store's dialect. It is idempotent.
func (s *SQLStore) ApplySchema(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("schema/" + s.dbType + ".sql")
	if err != nil {
		return errors.Wrapf(err, "no schema for database type %q", s.dbType)
	}

	for _, stmt := range strings.Split(string(ddl), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to apply schema statement %.60q", stmt)
		}
	}

	logger.Log.Info("Applied store schema", zap.String("type", s.dbType))
	return nil
}

func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	spec, err := lookupTable(q.Table)
	if err != nil {
		return nil, err
	}
	if q.matchesNothing() {
		return nil, nil
	}

	cols := q.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	} else if err := spec.checkColumns(q.Table, cols); err != nil {
		return nil, err
	}

	sb := s.flavor.NewSelectBuilder()
	sb.Select(cols...).From(q.Table)

	where := []string{sb.Equal("tenant_id", s.tenantID)}
	if spec.softDelete {
		where = append(where, sb.IsNull("deleted_at"))
	}
	for _, f := range q.Filters {
		if err := spec.checkColumns(q.Table, []string{f.Column}); err != nil {
			return nil, err
		}
		switch f.Op {
		case OpEq:
			where = append(where, sb.Equal(f.Column, f.Value))
		case OpIn:
			vals, _ := f.Value.([]any)
			where = append(where, sb.In(f.Column, vals...))
		case OpIsNull:
			where = append(where, sb.IsNull(f.Column))
		case OpNotNull:
			where = append(where, sb.IsNotNull(f.Column))
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	sb.Where(where...)

	if q.OrderBy != "" {
		if err := spec.checkColumns(q.Table, []string{q.OrderBy}); err != nil {
			return nil, err
		}
		sb.OrderBy(q.OrderBy)
		if q.Desc {
			sb.Desc()
		} else {
			sb.Asc()
		}
	}
	if q.Limit > 0 {
		sb.Limit(q.Limit)
		if q.Offset > 0 {
			sb.Offset(q.Offset)
		}
	}

	query, args := sb.Build()
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "select from %s", q.Table)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, errors.Wrapf(err, "scan %s row", q.Table)
		}
		out = append(out, decodeRow(spec, m))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s rows", q.Table)
	}
	return out, nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, fields Row) (Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	row := fields.Clone()
	now := s.now()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	row["tenant_id"] = s.tenantID
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}

	cols := sortedKeys(row)
	if err := spec.checkColumns(table, cols); err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	for i, c := range cols {
		if vals[i], err = encodeValue(spec, c, row[c]); err != nil {
			return nil, err
		}
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto(table).Cols(cols...).Values(vals...)
	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrapf(err, "insert into %s", table)
	}
	return row, nil
}

func (s *SQLStore) Update(ctx context.Context, table, id string, fields Row) (Row, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	set := fields.Clone()
	delete(set, "id")
	delete(set, "tenant_id")
	delete(set, "created_at")
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = s.now()
	}
	if err := s.execUpdate(ctx, spec, table, id, set); err != nil {
		return nil, err
	}

	rows, err := s.Select(ctx, Query{Table: table, Filters: []Filter{Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "reload %s %s", table, id)
	}
	return rows[0], nil
}

// execUpdate writes set to one live row of the tenant. ErrNotFound when nothing matched.
func (s *SQLStore) execUpdate(ctx context.Context, spec tableSpec, table, id string, set Row) error {
	cols := sortedKeys(set)
	if err := spec.checkColumns(table, cols); err != nil {
		return err
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update(table)
	assignments := make([]string, len(cols))
	for i, c := range cols {
		v, err := encodeValue(spec, c, set[c])
		if err != nil {
			return err
		}
		assignments[i] = ub.Assign(c, v)
	}
	ub.Set(assignments...)
	where := []string{ub.Equal("id", id), ub.Equal("tenant_id", s.tenantID)}
	if spec.softDelete {
		where = append(where, ub.IsNull("deleted_at"))
	}
	ub.Where(where...)

	query, args := ub.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s %s", table, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "update %s %s", table, id)
	}
	return nil
}

// Delete soft deletes a live row. The row is not reloaded since it is no longer visible.
func (s *SQLStore) Delete(ctx context.Context, table, id string) error {
	spec, err := lookupTable(table)
	if err != nil {
		return err
	}
	if !spec.softDelete {
		return fmt.Errorf("%s does not support delete", table)
	}
	now := s.now()
	return s.execUpdate(ctx, spec, table, id, Row{"deleted_at": now, "updated_at": now})
}

func encodeValue(spec tableSpec, col string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if spec.jsonColumns[col] {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", col)
		}
		return string(b), nil
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC(), nil
	}
	return v, nil
}

func decodeRow(spec tableSpec, m map[string]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if str, ok := v.(string); ok && spec.jsonColumns[k] {
			var decoded any
			if err := json.Unmarshal([]byte(str), &decoded); err == nil {
				v = decoded
			}
		}
		row[k] = v
	}
	return row
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
