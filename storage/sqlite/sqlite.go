// Package sqlite provides a Store backed by modernc.org/sqlite (no
// cgo).  Key/value pairs live in one table; registered tables become
// real SQL tables with per-column constraints, so unique checks and
// ordering run in the database rather than in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/rigging/storage"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB

	sync.Mutex
	defs map[string]*storage.TableDef
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) the database at filename and prepares
// the key/value and metadata schema.
func NewStore(filename string) (*Store, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:   db,
		defs: make(map[string]*storage.TableDef),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			v TEXT,
			type TEXT,
			created_ms INTEGER NOT NULL,
			updated_ms INTEGER NOT NULL,
			expires_ms INTEGER
		);
		CREATE TABLE IF NOT EXISTS tabledefs (
			name TEXT PRIMARY KEY,
			def TEXT NOT NULL
		);`,
	)
	if err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT name, def FROM tabledefs`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, js string
		if err := rows.Scan(&name, &js); err != nil {
			return err
		}
		var def storage.TableDef
		if err := json.Unmarshal([]byte(js), &def); err != nil {
			return err
		}
		s.defs[name] = &def
	}
	return rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) def(name string) (*storage.TableDef, error) {
	s.Lock()
	defer s.Unlock()
	def, have := s.defs[name]
	if !have {
		return nil, &storage.UnknownTable{Name: name}
	}
	return def, nil
}

func ms(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func (s *Store) Get(ctx context.Context, key string) (*storage.Value, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT v, type, created_ms, updated_ms, expires_ms
		FROM kv WHERE key = ?`,
		key,
	)

	var (
		js, typ          string
		created, updated int64
		expires          sql.NullInt64
	)
	if err := row.Scan(&js, &typ, &created, &updated, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	val := &storage.Value{
		Type:      typ,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}
	if err := json.Unmarshal([]byte(js), &val.V); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := time.UnixMilli(expires.Int64).UTC()
		val.ExpiresAt = &t
	}
	if val.Expired(time.Now().UTC()) {
		if err := s.reap(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return val, nil
}

// reap deletes key if its row is still expired.  The predicate
// rechecks the TTL so a concurrent Set doesn't get thrown away.
func (s *Store) reap(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv
		WHERE key = ? AND expires_ms IS NOT NULL AND expires_ms <= ?`,
		key, ms(time.Now().UTC()),
	)
	return err
}

func (s *Store) Set(ctx context.Context, key string, val *storage.Value) error {
	js, err := json.Marshal(val.V)
	if err != nil {
		return err
	}
	var expires interface{}
	if val.ExpiresAt != nil {
		expires = ms(*val.ExpiresAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, v, type, created_ms, updated_ms, expires_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			v = excluded.v,
			type = excluded.type,
			updated_ms = excluded.updated_ms,
			expires_ms = excluded.expires_ms`,
		key, string(js), val.Type, ms(val.CreatedAt), ms(val.UpdatedAt), expires,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT expires_ms FROM kv WHERE key = ?`, key)
	var expires sql.NullInt64
	if err := row.Scan(&expires); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if expires.Valid && expires.Int64 <= ms(time.Now().UTC()) {
		if err := s.reap(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	return err
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := storage.GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	// A scan of the keyspace reclaims whatever has expired rather
	// than filtering around it.
	if _, err := s.Cleanup(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE expires_ms IS NULL OR ? < expires_ms`,
		ms(time.Now().UTC()),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	acc := make([]string, 0, 16)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if re.MatchString(key) {
			acc = append(acc, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(acc)
	return acc, nil
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM kv WHERE expires_ms IS NOT NULL AND expires_ms <= ?`,
		ms(time.Now().UTC()),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func sqlType(cd *storage.ColumnDef) string {
	switch cd.Type {
	case "number", "timestamp":
		return "REAL"
	case "boolean":
		return "INTEGER"
	}
	return "TEXT"
}

func (s *Store) CreateTable(ctx context.Context, name string, def *storage.TableDef) error {
	// ValidIdent ran upstream, but this is where names meet DDL, so
	// check again before interpolating anything.
	if err := storage.ValidIdent("table", name); err != nil {
		return err
	}

	cols := make([]string, 0, len(def.Columns))
	for col := range def.Columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	ddl := make([]string, 0, len(cols)+1)
	ddl = append(ddl, `_id TEXT PRIMARY KEY`)
	for _, col := range cols {
		if err := storage.ValidIdent("column", col); err != nil {
			return err
		}
		cd := def.Columns[col]
		line := fmt.Sprintf("%s %s", col, sqlType(cd))
		if cd.Primary || cd.Unique {
			line += " UNIQUE"
		}
		ddl = append(ddl, line)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(ddl, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}

	for _, col := range cols {
		if !def.Columns[col].Index {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", name, col, name, col)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, idx := range def.Indexes {
		for _, col := range idx {
			if err := storage.ValidIdent("column", col); err != nil {
				return err
			}
			if _, have := def.Columns[col]; !have {
				return &storage.UnknownColumn{Table: name, Column: col}
			}
		}
		if len(idx) == 0 {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			name, strings.Join(idx, "_"), name, strings.Join(idx, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	js, err := json.Marshal(def)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tabledefs (name, def) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET def = excluded.def`,
		name, string(js),
	)
	if err != nil {
		return err
	}

	s.Lock()
	s.defs[name] = def
	s.Unlock()
	return nil
}

// encodeCol readies a row value for its column: json columns are
// marshaled, everything else passes through for the driver.
func encodeCol(cd *storage.ColumnDef, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if cd != nil && cd.Type == "json" {
		js, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(js), nil
	}
	return v, nil
}

func (s *Store) decodeRow(def *storage.TableDef, cols []string, vals []interface{}) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		v := vals[i]
		if v == nil {
			continue
		}
		if bs, ok := v.([]byte); ok {
			v = string(bs)
		}
		cd := def.Columns[col]
		if cd == nil {
			row[col] = v
			continue
		}
		switch cd.Type {
		case "json":
			var decoded interface{}
			if err := json.Unmarshal([]byte(v.(string)), &decoded); err != nil {
				return nil, err
			}
			v = decoded
		case "boolean":
			if n, ok := v.(int64); ok {
				v = n != 0
			}
		case "number", "timestamp":
			if n, ok := v.(int64); ok {
				v = float64(n)
			}
		}
		row[col] = v
	}
	return row, nil
}

func mapDup(table string, err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		d := &storage.Duplicate{Table: table}
		if i := strings.LastIndex(err.Error(), "."); 0 <= i {
			d.Column = err.Error()[i+1:]
		}
		return d
	}
	return err
}

func (s *Store) Insert(ctx context.Context, name string, row map[string]interface{}) (string, error) {
	def, err := s.def(name)
	if err != nil {
		return "", err
	}
	prepared, err := storage.PrepareRow(name, def, row)
	if err != nil {
		return "", err
	}

	cols := make([]string, 0, len(prepared))
	for col := range prepared {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	marks := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		v, err := encodeCol(def.Columns[col], prepared[col])
		if err != nil {
			return "", err
		}
		marks = append(marks, "?")
		args = append(args, v)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", mapDup(name, err)
	}
	return prepared["_id"].(string), nil
}

func whereClause(table string, def *storage.TableDef, where map[string]interface{}) (string, []interface{}, error) {
	if err := storage.CheckColumns(table, def, where); err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, nil
	}
	cols := make([]string, 0, len(where))
	for col := range where {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	clauses := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		v, err := encodeCol(def.Columns[col], where[col])
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (s *Store) Update(ctx context.Context, name string, where, set map[string]interface{}) (int, error) {
	def, err := s.def(name)
	if err != nil {
		return 0, err
	}
	if err := storage.CheckColumns(name, def, set); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}

	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	assigns := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		v, err := encodeCol(def.Columns[col], set[col])
		if err != nil {
			return 0, err
		}
		assigns = append(assigns, col+" = ?")
		args = append(args, v)
	}

	clause, whereArgs, err := whereClause(name, def, where)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s", name, strings.Join(assigns, ", ")) + clause
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, mapDup(name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteRows(ctx context.Context, name string, where map[string]interface{}) (int, error) {
	def, err := s.def(name)
	if err != nil {
		return 0, err
	}
	clause, args, err := whereClause(name, def, where)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+name+clause, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) Query(ctx context.Context, name string, q storage.QueryOptions) ([]map[string]interface{}, error) {
	def, err := s.def(name)
	if err != nil {
		return nil, err
	}
	clause, args, err := whereClause(name, def, q.Where)
	if err != nil {
		return nil, err
	}

	stmt := "SELECT * FROM " + name + clause
	if q.OrderBy != "" {
		if err := storage.CheckColumns(name, def, map[string]interface{}{q.OrderBy: nil}); err != nil {
			return nil, err
		}
		stmt += " ORDER BY " + q.OrderBy
		if q.Desc {
			stmt += " DESC"
		}
	}
	if 0 < q.Limit {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if 0 < q.Offset {
		stmt += " LIMIT -1"
	}
	if 0 < q.Offset {
		stmt += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	acc := make([]map[string]interface{}, 0, 16)
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row, err := s.decodeRow(def, cols, vals)
		if err != nil {
			return nil, err
		}
		acc = append(acc, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acc, nil
}
