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

package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comcast/rigging/storage"
)

func TestImpl(t *testing.T) {
	// Just confirm that this code compiles.
	var _ storage.Store = &Store{}
}

func testStore(t *testing.T) (*Store, func()) {
	filename := filepath.Join(t.TempDir(), "state.db")

	s, err := NewStore(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBasics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, done := testStore(t)
	defer done()

	{
		if err := s.Set(ctx, "likes", storage.NewValue("tacos", "string", 0)); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "likes")
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.V != "tacos" {
			t.Fatalf("wanted tacos, got %#v", got)
		}
	}

	{
		keys, err := s.Keys(ctx, "li*")
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 1 || keys[0] != "likes" {
			t.Fatalf("bad keys: %v", keys)
		}
	}

	{
		if have, _ := s.Has(ctx, "likes"); !have {
			t.Fatal("Has missed")
		}
		if err := s.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		if have, _ := s.Has(ctx, "likes"); have {
			t.Fatal("Clear didn't")
		}
	}
}

func TestExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, done := testStore(t)
	defer done()

	expired := func(key string) {
		v := storage.NewValue("queso", "string", time.Minute)
		past := time.Now().UTC().Add(-time.Second)
		v.ExpiresAt = &past
		if err := s.Set(ctx, key, v); err != nil {
			t.Fatal(err)
		}
	}

	// An expired value nobody reads waits for the sweep.
	expired("snack")
	n, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Cleanup reclaimed %d values", n)
	}

	// A read sees nothing and reclaims the entry itself, so a
	// later sweep has nothing left to do.
	expired("snack")
	if got, _ := s.Get(ctx, "snack"); got != nil {
		t.Fatalf("got expired value %#v", got)
	}
	if n, _ := s.Cleanup(ctx); n != 0 {
		t.Fatalf("Get left %d expired values behind", n)
	}

	expired("snack")
	if have, _ := s.Has(ctx, "snack"); have {
		t.Fatal("Has saw an expired value")
	}
	if n, _ := s.Cleanup(ctx); n != 0 {
		t.Fatalf("Has left %d expired values behind", n)
	}

	expired("crumbs")
	if keys, _ := s.Keys(ctx, "*"); len(keys) != 0 {
		t.Fatalf("expired key still listed: %v", keys)
	}
	if n, _ := s.Cleanup(ctx); n != 0 {
		t.Fatalf("Keys left %d expired values behind", n)
	}
}

func TestTables(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, done := testStore(t)
	defer done()

	def := &storage.TableDef{
		Columns: map[string]*storage.ColumnDef{
			"who":    {Type: "string"},
			"reason": {Type: "string", Default: "unspecified"},
		},
	}
	if err := s.CreateTable(ctx, "warnings", def); err != nil {
		t.Fatal(err)
	}

	for _, who := range []string{"homer", "bart", "homer"} {
		if _, err := s.Insert(ctx, "warnings", map[string]interface{}{"who": who}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.Query(ctx, "warnings", storage.QueryOptions{
		Where: map[string]interface{}{"who": "homer"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("wanted 2 homers, got %d", len(rows))
	}

	n, err := s.Update(ctx, "warnings",
		map[string]interface{}{"who": "bart"},
		map[string]interface{}{"reason": "slingshot"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("updated %d rows", n)
	}

	if n, err = s.DeleteRows(ctx, "warnings", map[string]interface{}{"who": "homer"}); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows", n)
	}
}

// TestReopen checks that table shapes survive a close and reopen.
func TestReopen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filename := filepath.Join(t.TempDir(), "state.db")

	s, err := NewStore(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}

	def := &storage.TableDef{
		Columns: map[string]*storage.ColumnDef{
			"tag": {Type: "string", Unique: true},
		},
	}
	if err := s.CreateTable(ctx, "tags", def); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, "tags", map[string]interface{}{"tag": "faq"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewStore(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rows, err := s.Query(ctx, "tags", storage.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["tag"] != "faq" {
		t.Fatalf("lost the rows: %v", rows)
	}

	if _, err = s.Insert(ctx, "tags", map[string]interface{}{"tag": "faq"}); err == nil {
		t.Fatal("duplicate accepted after reopen")
	}
}

// BenchmarkSet is just for fun.  Bolt is slow.
func BenchmarkSet(b *testing.B) {
	filename := filepath.Join(b.TempDir(), "state.db")

	s, err := NewStore(filename)
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Open(); err != nil {
		b.Fatal(err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			b.Fatal(err)
		}
		os.Remove(filename)
	}()

	ctx := context.Background()
	v := storage.NewValue("tacos", "string", 0)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := s.Set(ctx, "likes", v); err != nil {
			b.Fatal(err)
		}
	}
}
