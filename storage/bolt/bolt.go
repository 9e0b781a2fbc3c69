/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bolt provides a Store backed by a bbolt file.  Values and
// rows are stored as JSON; queries filter in memory.
package bolt

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Comcast/rigging/storage"

	bolt "go.etcd.io/bbolt"
)

var (
	kvBucket   = []byte("kv")
	defsBucket = []byte("tabledefs")
)

func tableBucket(name string) []byte {
	return []byte("table." + name)
}

type Store struct {
	Debug bool

	filename string
	db       *bolt.DB

	sync.Mutex
	defs map[string]*storage.TableDef
}

// NewStore returns a Store for the given file.  Call Open before use.
func NewStore(filename string) (*Store, error) {
	return &Store{
		filename: filename,
		defs:     make(map[string]*storage.TableDef),
	}, nil
}

func (s *Store) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db

	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(kvBucket); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists(defsBucket)
		if err != nil {
			return err
		}
		// Reload table shapes written by earlier runs.
		return b.ForEach(func(name, js []byte) error {
			var def storage.TableDef
			if err := json.Unmarshal(js, &def); err != nil {
				return err
			}
			s.defs[string(name)] = &def
			return nil
		})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("bolt.Store."+format, args...)
	}
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

func (s *Store) Get(ctx context.Context, key string) (*storage.Value, error) {
	var val *storage.Value
	err := s.db.View(func(tx *bolt.Tx) error {
		js := tx.Bucket(kvBucket).Get([]byte(key))
		if js == nil {
			return nil
		}
		var v storage.Value
		if err := json.Unmarshal(js, &v); err != nil {
			return err
		}
		val = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	if val.Expired(time.Now().UTC()) {
		if err := s.reap(key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return val, nil
}

// reap deletes key if its stored value is still expired.  The recheck
// inside the write transaction keeps a concurrent Set from getting
// thrown away.
func (s *Store) reap(key string) error {
	s.logf("reap %s", key)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		js := b.Get([]byte(key))
		if js == nil {
			return nil
		}
		var v storage.Value
		if err := json.Unmarshal(js, &v); err != nil {
			return err
		}
		if !v.Expired(time.Now().UTC()) {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) Set(ctx context.Context, key string, val *storage.Value) error {
	s.logf("Set %s", key)
	js, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(key), js)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.logf("Delete %s", key)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Delete([]byte(key))
	})
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	return v != nil, err
}

func (s *Store) Clear(ctx context.Context) error {
	s.logf("Clear")
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(kvBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(kvBucket)
		return err
	})
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := storage.GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acc := make([]string, 0, 16)
	var dead []string
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(kvBucket).Cursor()
		for k, js := c.First(); k != nil; k, js = c.Next() {
			if !re.Match(k) {
				continue
			}
			var v storage.Value
			if err := json.Unmarshal(js, &v); err != nil {
				return err
			}
			if v.Expired(now) {
				dead = append(dead, string(k))
				continue
			}
			acc = append(acc, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, k := range dead {
		if err := s.reap(k); err != nil {
			return nil, err
		}
	}
	sort.Strings(acc)
	return acc, nil
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		gone := make([][]byte, 0, 16)
		c := b.Cursor()
		for k, js := c.First(); k != nil; k, js = c.Next() {
			var v storage.Value
			if err := json.Unmarshal(js, &v); err != nil {
				return err
			}
			if v.Expired(now) {
				key := make([]byte, len(k))
				copy(key, k)
				gone = append(gone, key)
			}
		}
		for _, k := range gone {
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logf("Cleanup removed %d", n)
	return n, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, def *storage.TableDef) error {
	s.logf("CreateTable %s", name)
	js, err := json.Marshal(def)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(defsBucket).Put([]byte(name), js); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(tableBucket(name))
		return err
	})
	if err != nil {
		return err
	}
	s.Lock()
	s.defs[name] = def
	s.Unlock()
	return nil
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
	js, err := json.Marshal(prepared)
	if err != nil {
		return "", err
	}
	id := prepared["_id"].(string)
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tableBucket(name))
		if b == nil {
			return &storage.UnknownTable{Name: name}
		}
		for col, cd := range def.Columns {
			if !cd.Primary && !cd.Unique {
				continue
			}
			want, have := prepared[col]
			if !have {
				continue
			}
			c := b.Cursor()
			for k, rowJS := c.First(); k != nil; k, rowJS = c.Next() {
				var existing map[string]interface{}
				if err := json.Unmarshal(rowJS, &existing); err != nil {
					return err
				}
				if storage.Eq(existing[col], want) {
					return &storage.Duplicate{Table: name, Column: col}
				}
			}
		}
		return b.Put([]byte(id), js)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// rows reads a whole table.  Fine at bot scale; these tables hold
// warnings and reminders, not telemetry.
func rows(b *bolt.Bucket) ([]map[string]interface{}, error) {
	acc := make([]map[string]interface{}, 0, 32)
	c := b.Cursor()
	for k, js := c.First(); k != nil; k, js = c.Next() {
		var row map[string]interface{}
		if err := json.Unmarshal(js, &row); err != nil {
			return nil, err
		}
		acc = append(acc, row)
	}
	return acc, nil
}

func (s *Store) Update(ctx context.Context, name string, where, set map[string]interface{}) (int, error) {
	def, err := s.def(name)
	if err != nil {
		return 0, err
	}
	if err := storage.CheckColumns(name, def, where); err != nil {
		return 0, err
	}
	if err := storage.CheckColumns(name, def, set); err != nil {
		return 0, err
	}
	n := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tableBucket(name))
		if b == nil {
			return &storage.UnknownTable{Name: name}
		}
		all, err := rows(b)
		if err != nil {
			return err
		}
		for _, row := range all {
			if !storage.MatchWhere(row, where) {
				continue
			}
			for col, v := range set {
				row[col] = v
			}
			js, err := json.Marshal(row)
			if err != nil {
				return err
			}
			id, _ := row["_id"].(string)
			if err := b.Put([]byte(id), js); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) DeleteRows(ctx context.Context, name string, where map[string]interface{}) (int, error) {
	def, err := s.def(name)
	if err != nil {
		return 0, err
	}
	if err := storage.CheckColumns(name, def, where); err != nil {
		return 0, err
	}
	n := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tableBucket(name))
		if b == nil {
			return &storage.UnknownTable{Name: name}
		}
		all, err := rows(b)
		if err != nil {
			return err
		}
		for _, row := range all {
			if !storage.MatchWhere(row, where) {
				continue
			}
			id, _ := row["_id"].(string)
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Query(ctx context.Context, name string, q storage.QueryOptions) ([]map[string]interface{}, error) {
	def, err := s.def(name)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckColumns(name, def, q.Where); err != nil {
		return nil, err
	}
	var all []map[string]interface{}
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(tableBucket(name))
		if b == nil {
			return &storage.UnknownTable{Name: name}
		}
		var err error
		all, err = rows(b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return storage.ApplyQuery(all, q), nil
}
