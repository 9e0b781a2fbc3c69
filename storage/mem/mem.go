// Package mem provides the in-memory Store.  It's the default
// backend, and the one the test suites lean on.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Comcast/rigging/storage"
)

type table struct {
	def  *storage.TableDef
	rows []map[string]interface{}
}

// Store keeps everything in maps.  Zero value is not usable; call
// NewStore.
type Store struct {
	sync.RWMutex
	kv     map[string]*storage.Value
	tables map[string]*table
}

func NewStore() *Store {
	return &Store{
		kv:     make(map[string]*storage.Value),
		tables: make(map[string]*table),
	}
}

func (s *Store) Get(ctx context.Context, key string) (*storage.Value, error) {
	s.RLock()
	v, have := s.kv[key]
	s.RUnlock()
	if !have {
		return nil, nil
	}
	if v.Expired(time.Now().UTC()) {
		s.reap(key)
		return nil, nil
	}
	return v, nil
}

// reap drops key if its value is still expired.  The recheck under
// the write lock keeps a concurrent Set from getting thrown away.
func (s *Store) reap(key string) {
	s.Lock()
	defer s.Unlock()
	if v, have := s.kv[key]; have && v.Expired(time.Now().UTC()) {
		delete(s.kv, key)
	}
}

func (s *Store) Set(ctx context.Context, key string, val *storage.Value) error {
	s.Lock()
	defer s.Unlock()
	s.kv[key] = val
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	return v != nil, err
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := storage.GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acc := make([]string, 0, 16)
	var dead []string
	s.RLock()
	for k, v := range s.kv {
		if v.Expired(now) {
			dead = append(dead, k)
			continue
		}
		if re.MatchString(k) {
			acc = append(acc, k)
		}
	}
	s.RUnlock()
	for _, k := range dead {
		s.reap(k)
	}
	sort.Strings(acc)
	return acc, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()
	s.kv = make(map[string]*storage.Value)
	return nil
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.Lock()
	defer s.Unlock()
	now := time.Now().UTC()
	n := 0
	for k, v := range s.kv {
		if v.Expired(now) {
			delete(s.kv, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, def *storage.TableDef) error {
	s.Lock()
	defer s.Unlock()
	if t, have := s.tables[name]; have {
		// Re-registration updates the shape but keeps the rows.
		t.def = def
		return nil
	}
	s.tables[name] = &table{def: def}
	return nil
}

func (s *Store) Insert(ctx context.Context, name string, row map[string]interface{}) (string, error) {
	s.Lock()
	defer s.Unlock()
	t, have := s.tables[name]
	if !have {
		return "", &storage.UnknownTable{Name: name}
	}
	prepared, err := storage.PrepareRow(name, t.def, row)
	if err != nil {
		return "", err
	}
	for col, cd := range t.def.Columns {
		if !cd.Primary && !cd.Unique {
			continue
		}
		want, have := prepared[col]
		if !have {
			continue
		}
		for _, existing := range t.rows {
			if storage.Eq(existing[col], want) {
				return "", &storage.Duplicate{Table: name, Column: col}
			}
		}
	}
	t.rows = append(t.rows, prepared)
	return prepared["_id"].(string), nil
}

func (s *Store) Update(ctx context.Context, name string, where, set map[string]interface{}) (int, error) {
	s.Lock()
	defer s.Unlock()
	t, have := s.tables[name]
	if !have {
		return 0, &storage.UnknownTable{Name: name}
	}
	if err := storage.CheckColumns(name, t.def, where); err != nil {
		return 0, err
	}
	if err := storage.CheckColumns(name, t.def, set); err != nil {
		return 0, err
	}
	n := 0
	for _, row := range t.rows {
		if !storage.MatchWhere(row, where) {
			continue
		}
		for col, v := range set {
			row[col] = v
		}
		n++
	}
	return n, nil
}

func (s *Store) DeleteRows(ctx context.Context, name string, where map[string]interface{}) (int, error) {
	s.Lock()
	defer s.Unlock()
	t, have := s.tables[name]
	if !have {
		return 0, &storage.UnknownTable{Name: name}
	}
	if err := storage.CheckColumns(name, t.def, where); err != nil {
		return 0, err
	}
	kept := t.rows[:0]
	n := 0
	for _, row := range t.rows {
		if storage.MatchWhere(row, where) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return n, nil
}

func (s *Store) Query(ctx context.Context, name string, q storage.QueryOptions) ([]map[string]interface{}, error) {
	s.RLock()
	defer s.RUnlock()
	t, have := s.tables[name]
	if !have {
		return nil, &storage.UnknownTable{Name: name}
	}
	if err := storage.CheckColumns(name, t.def, q.Where); err != nil {
		return nil, err
	}
	found := storage.ApplyQuery(t.rows, q)
	acc := make([]map[string]interface{}, 0, len(found))
	for _, row := range found {
		acc = append(acc, storage.CopyRow(row))
	}
	return acc, nil
}

func (s *Store) Close() error {
	return nil
}
