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

package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/rigging/storage"
	"github.com/Comcast/rigging/storage/mem"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(mem.NewStore())
	err := m.RegisterVariables(map[string]*VariableDef{
		"motd":     {Type: "string", Default: "welcome"},
		"likes":    {Type: "string", Scope: "user"},
		"warnings": {Type: "number", Scope: "user", Default: float64(0)},
		"topic":    {Type: "string", Scope: "channel"},
		"strict":   {Type: "boolean", Scope: "guild"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGetSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := testManager(t)
	sc := Scope{GuildID: "g1", ChannelID: "c1", UserID: "homer"}

	// Unset reads give the declared default.
	v, err := m.Get(ctx, "motd", sc)
	if err != nil {
		t.Fatal(err)
	}
	if v != "welcome" {
		t.Fatalf("got %#v", v)
	}

	if err := m.Set(ctx, "likes", "tacos", sc); err != nil {
		t.Fatal(err)
	}
	if v, _ = m.Get(ctx, "likes", sc); v != "tacos" {
		t.Fatalf("got %#v", v)
	}

	if err := m.Delete(ctx, "likes", sc); err != nil {
		t.Fatal(err)
	}
	if v, _ = m.Get(ctx, "likes", sc); v != nil {
		t.Fatalf("Delete didn't: %#v", v)
	}
}

func TestUnknownVariable(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	_, err := m.Get(ctx, "nachos", Scope{})
	if err == nil {
		t.Fatal("unregistered variable accepted")
	}
	if _, is := err.(*UnknownVariable); !is {
		t.Fatalf("wrong error type %T", err)
	}

	if err = m.Set(ctx, "nachos", 1, Scope{}); err == nil {
		t.Fatal("unregistered variable accepted")
	}
}

func TestMissingScopeID(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	// A user variable without a user id has nowhere to go.
	_, err := m.Get(ctx, "likes", Scope{GuildID: "g1"})
	if err == nil {
		t.Fatal("missing scope id accepted")
	}
	if _, is := err.(*MissingScopeID); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestScopeIsolation(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	homer := Scope{UserID: "homer"}
	bart := Scope{UserID: "bart"}

	if err := m.Set(ctx, "likes", "tacos", homer); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, "likes", "slingshots", bart); err != nil {
		t.Fatal(err)
	}

	if v, _ := m.Get(ctx, "likes", homer); v != "tacos" {
		t.Fatalf("got %#v", v)
	}
	if v, _ := m.Get(ctx, "likes", bart); v != "slingshots" {
		t.Fatalf("got %#v", v)
	}
}

func TestRegisterVariablesBadDefs(t *testing.T) {
	m := NewManager(mem.NewStore())

	err := m.RegisterVariables(map[string]*VariableDef{
		"x": {Type: "decimal"},
	})
	if err == nil {
		t.Fatal("bad type accepted")
	}
	if _, is := err.(*BadDef); !is {
		t.Fatalf("wrong error type %T", err)
	}

	err = m.RegisterVariables(map[string]*VariableDef{
		"x": {Type: "string", Scope: "planet"},
	})
	if err == nil {
		t.Fatal("bad scope accepted")
	}

	err = m.RegisterVariables(map[string]*VariableDef{
		"not an ident": {Type: "string"},
	})
	if err == nil {
		t.Fatal("bad name accepted")
	}
	if _, is := err.(*storage.BadIdent); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestCoercion(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)
	sc := Scope{GuildID: "g1", UserID: "homer"}

	// Whatever numeric flavor went in, float64 comes out.
	if err := m.Set(ctx, "warnings", 3, sc); err != nil {
		t.Fatal(err)
	}
	v, err := m.Get(ctx, "warnings", sc)
	if err != nil {
		t.Fatal(err)
	}
	if f, is := v.(float64); !is || f != 3 {
		t.Fatalf("got %#v (%T)", v, v)
	}

	if err := m.Set(ctx, "strict", "true", sc); err != nil {
		t.Fatal(err)
	}
	if v, _ = m.Get(ctx, "strict", sc); v != true {
		t.Fatalf("got %#v", v)
	}
}

func TestSetWithTTL(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)
	sc := Scope{UserID: "homer"}

	if err := m.SetWithTTL(ctx, "likes", "queso", sc, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Get(ctx, "likes", sc); v != "queso" {
		t.Fatalf("got %#v", v)
	}

	time.Sleep(25 * time.Millisecond)

	if v, _ := m.Get(ctx, "likes", sc); v != nil {
		t.Fatalf("value outlived its TTL: %#v", v)
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)
	sc := Scope{UserID: "homer"}

	n, err := m.Increment(ctx, "warnings", 1, sc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %v", n)
	}
	if n, _ = m.Decrement(ctx, "warnings", 3, sc); n != -2 {
		t.Fatalf("got %v", n)
	}

	if _, err = m.Increment(ctx, "likes", 1, sc); err == nil {
		t.Fatal("incremented a string")
	} else if _, is := err.(*NotNumeric); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	homer := Scope{UserID: "homer"}
	bart := Scope{UserID: "bart"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := m.Increment(ctx, "warnings", 1, homer); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := m.Decrement(ctx, "warnings", 1, bart); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if v, _ := m.Get(ctx, "warnings", homer); v.(float64) != 50 {
		t.Fatalf("lost updates: %#v", v)
	}
	if v, _ := m.Get(ctx, "warnings", bart); v.(float64) != -50 {
		t.Fatalf("lost updates: %#v", v)
	}
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	err := m.RegisterTables(ctx, map[string]*storage.TableDef{
		"reminders": {
			Columns: map[string]*storage.ColumnDef{
				"who":  {Type: "string", Index: true},
				"what": {Type: "string"},
				"due":  {Type: "timestamp"},
			},
			Indexes: [][]string{{"who", "due"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	id, err := m.Insert(ctx, "reminders", map[string]interface{}{
		"who":  "homer",
		"what": "buy donuts",
		"due":  float64(1700000000000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("no row id")
	}

	rows, err := m.Query(ctx, "reminders", storage.QueryOptions{
		Where: map[string]interface{}{"who": "homer"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["what"] != "buy donuts" {
		t.Fatalf("bad rows: %v", rows)
	}

	if n, _ := m.Update(ctx, "reminders",
		map[string]interface{}{"who": "homer"},
		map[string]interface{}{"what": "buy more donuts"}); n != 1 {
		t.Fatalf("updated %d rows", n)
	}
	if n, _ := m.DeleteRows(ctx, "reminders", map[string]interface{}{"who": "homer"}); n != 1 {
		t.Fatalf("deleted %d rows", n)
	}

	// Unregistered tables fail fast, before the adapter.
	_, err = m.Insert(ctx, "nope", map[string]interface{}{"who": "homer"})
	if err == nil {
		t.Fatal("unregistered table accepted")
	}
	if _, is := err.(*storage.UnknownTable); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestRegisterTablesBadDefs(t *testing.T) {
	ctx := context.Background()
	m := NewManager(mem.NewStore())

	err := m.RegisterTables(ctx, map[string]*storage.TableDef{
		"t; DROP TABLE kv": {Columns: map[string]*storage.ColumnDef{"a": {Type: "string"}}},
	})
	if err == nil {
		t.Fatal("hostile table name accepted")
	}

	err = m.RegisterTables(ctx, map[string]*storage.TableDef{
		"t": {Columns: map[string]*storage.ColumnDef{"a": {Type: "blob"}}},
	})
	if err == nil {
		t.Fatal("bad column type accepted")
	}

	err = m.RegisterTables(ctx, map[string]*storage.TableDef{
		"t": {
			Columns: map[string]*storage.ColumnDef{"a": {Type: "string"}},
			Indexes: [][]string{{"missing"}},
		},
	})
	if err == nil {
		t.Fatal("index over a missing column accepted")
	}
}

func TestCache(t *testing.T) {
	m := testManager(t)

	m.CacheSet("cooldown:homer", true, 0)
	if v, have := m.CacheGet("cooldown:homer"); !have || v != true {
		t.Fatalf("got %#v, %v", v, have)
	}

	m.CacheDelete("cooldown:homer")
	if _, have := m.CacheGet("cooldown:homer"); have {
		t.Fatal("CacheDelete didn't")
	}

	m.CacheSet("blip", 1, 5*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	if _, have := m.CacheGet("blip"); have {
		t.Fatal("cache entry outlived its TTL")
	}
}

func TestCleanupSweepsCache(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	m.CacheSet("blip", 1, 5*time.Millisecond)
	m.CacheSet("keeper", 2, 0)
	time.Sleep(15 * time.Millisecond)

	n, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d", n)
	}
	if _, have := m.CacheGet("keeper"); !have {
		t.Fatal("sweep took a live entry")
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	guild := Scope{GuildID: "g1", UserID: "homer"}
	if err := m.Set(ctx, "likes", "tacos", guild); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, "strict", true, guild); err != nil {
		t.Fatal(err)
	}

	snap, err := m.Snapshot(ctx, guild)
	if err != nil {
		t.Fatal(err)
	}
	if snap["motd"] != "welcome" || snap["likes"] != "tacos" || snap["strict"] != true {
		t.Fatalf("bad snapshot: %#v", snap)
	}

	// No guild id: guild variables just don't appear.
	snap, err = m.Snapshot(ctx, Scope{UserID: "homer"})
	if err != nil {
		t.Fatal(err)
	}
	if _, have := snap["strict"]; have {
		t.Fatal("guild variable appeared without a guild")
	}
	if snap["motd"] != "welcome" {
		t.Fatalf("bad snapshot: %#v", snap)
	}

	if _, have := snap["topic"]; have {
		t.Fatal("channel variable appeared without a channel")
	}
}

func TestClose(t *testing.T) {
	m := testManager(t)
	m.CacheSet("x", 1, 0)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, have := m.CacheGet("x"); have {
		t.Fatal("Close left the cache populated")
	}
}
