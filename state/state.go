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

// Package state manages scoped variables and tables over a
// storage.Store.
//
// Variables are declared up front with a type and a scope kind;
// reading or writing an undeclared name is a caller error.  Storage
// keys are "kind:id:name", which is collision-free because ids are
// digits and names are validated identifiers.
package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Comcast/rigging/storage"
)

// A VariableDef declares one variable.
type VariableDef struct {
	// Type is one of "string", "number", "boolean", "array",
	// "object".
	Type string `json:"type" yaml:"type"`

	// Scope is one of "global", "guild", "channel", "user".
	// Empty means "global".
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`

	// Default is returned by Get when nothing has been stored.
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// A Scope carries the ids a scoped read or write resolves against.
// Which field matters depends on the variable's declared scope kind.
type Scope struct {
	GuildID   string `json:"guildId,omitempty" yaml:"guildId,omitempty"`
	ChannelID string `json:"channelId,omitempty" yaml:"channelId,omitempty"`
	UserID    string `json:"userId,omitempty" yaml:"userId,omitempty"`
}

// UnknownVariable means nobody registered a variable with that name.
type UnknownVariable struct {
	Name string
}

func (e *UnknownVariable) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// MissingScopeID means a scoped variable was addressed without the id
// its scope kind needs (say a user variable outside any user context).
type MissingScopeID struct {
	Variable string
	Scope    string
}

func (e *MissingScopeID) Error() string {
	return fmt.Sprintf("variable %q needs a %s id", e.Variable, e.Scope)
}

// BadDef means a variable or table definition didn't make sense.
type BadDef struct {
	Name   string
	Reason string
}

func (e *BadDef) Error() string {
	return fmt.Sprintf("bad definition %q: %s", e.Name, e.Reason)
}

// NotNumeric means increment/decrement was aimed at a variable that
// isn't declared as a number.
type NotNumeric struct {
	Name string
}

func (e *NotNumeric) Error() string {
	return fmt.Sprintf("variable %q is not a number", e.Name)
}

var variableTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

var scopeKinds = map[string]bool{
	"global":  true,
	"guild":   true,
	"channel": true,
	"user":    true,
}

var columnTypes = map[string]bool{
	"string":    true,
	"number":    true,
	"boolean":   true,
	"json":      true,
	"timestamp": true,
}

// A Manager resolves scoped variable names to store keys and gates
// every table operation behind registration and identifier checks.
//
// The embedded lock guards the definition maps and serializes
// read-modify-write operations; adapter errors propagate to callers
// unwrapped.
type Manager struct {
	store storage.Store

	sync.RWMutex
	vars   map[string]*VariableDef
	tables map[string]*storage.TableDef

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:  store,
		vars:   make(map[string]*VariableDef),
		tables: make(map[string]*storage.TableDef),
		cache:  make(map[string]cacheEntry),
	}
}

// RegisterVariables declares variables.  Names must be identifiers;
// re-registration replaces the definition.
func (m *Manager) RegisterVariables(defs map[string]*VariableDef) error {
	m.Lock()
	defer m.Unlock()
	for name, def := range defs {
		if err := storage.ValidIdent("variable", name); err != nil {
			return err
		}
		if def == nil {
			return &BadDef{Name: name, Reason: "no definition"}
		}
		if !variableTypes[def.Type] {
			return &BadDef{Name: name, Reason: fmt.Sprintf("type %q", def.Type)}
		}
		scope := def.Scope
		if scope == "" {
			scope = "global"
		}
		if !scopeKinds[scope] {
			return &BadDef{Name: name, Reason: fmt.Sprintf("scope %q", def.Scope)}
		}
		m.vars[name] = &VariableDef{Type: def.Type, Scope: scope, Default: def.Default}
	}
	return nil
}

// RegisterTables declares tables and creates them on the adapter.
func (m *Manager) RegisterTables(ctx context.Context, defs map[string]*storage.TableDef) error {
	for name, def := range defs {
		if err := storage.ValidIdent("table", name); err != nil {
			return err
		}
		if def == nil || len(def.Columns) == 0 {
			return &BadDef{Name: name, Reason: "no columns"}
		}
		for col, cd := range def.Columns {
			if err := storage.ValidIdent("column", col); err != nil {
				return err
			}
			if cd == nil || !columnTypes[cd.Type] {
				return &BadDef{Name: name, Reason: fmt.Sprintf("column %q", col)}
			}
		}
		for _, idx := range def.Indexes {
			for _, col := range idx {
				if _, have := def.Columns[col]; !have {
					return &storage.UnknownColumn{Table: name, Column: col}
				}
			}
		}
		if err := m.store.CreateTable(ctx, name, def); err != nil {
			return err
		}
		m.Lock()
		m.tables[name] = def
		m.Unlock()
	}
	return nil
}

func (m *Manager) definition(name string) (*VariableDef, error) {
	m.RLock()
	defer m.RUnlock()
	def, have := m.vars[name]
	if !have {
		return nil, &UnknownVariable{Name: name}
	}
	return def, nil
}

func (m *Manager) tableDef(name string) error {
	m.RLock()
	defer m.RUnlock()
	if _, have := m.tables[name]; !have {
		return &storage.UnknownTable{Name: name}
	}
	return nil
}

func scopeKey(kind string, sc Scope, name string) (string, error) {
	id := ""
	switch kind {
	case "guild":
		id = sc.GuildID
	case "channel":
		id = sc.ChannelID
	case "user":
		id = sc.UserID
	}
	if kind != "global" && id == "" {
		return "", &MissingScopeID{Variable: name, Scope: kind}
	}
	return kind + ":" + id + ":" + name, nil
}

// coerce nudges a stored value toward its declared type.  Numbers
// flatten to float64; everything the store gave back that already
// agrees passes through.
func coerce(v interface{}, typ string) interface{} {
	switch typ {
	case "number":
		if f, ok := asNumber(v); ok {
			return f
		}
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if t, err := strconv.ParseBool(b); err == nil {
				return t
			}
		case float64:
			return b != 0
		}
	}
	return v
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Get returns the variable's value in the given scope, or its
// declared default when nothing is stored.
func (m *Manager) Get(ctx context.Context, name string, sc Scope) (interface{}, error) {
	def, err := m.definition(name)
	if err != nil {
		return nil, err
	}
	key, err := scopeKey(def.Scope, sc, name)
	if err != nil {
		return nil, err
	}
	val, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return def.Default, nil
	}
	return coerce(val.V, def.Type), nil
}

func (m *Manager) Set(ctx context.Context, name string, v interface{}, sc Scope) error {
	return m.SetWithTTL(ctx, name, v, sc, 0)
}

// SetWithTTL writes a value that expires after ttl.  Zero means no
// expiry.
func (m *Manager) SetWithTTL(ctx context.Context, name string, v interface{}, sc Scope, ttl time.Duration) error {
	def, err := m.definition(name)
	if err != nil {
		return err
	}
	key, err := scopeKey(def.Scope, sc, name)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, storage.NewValue(v, def.Type, ttl))
}

// Delete removes the stored value; Get goes back to the default.
func (m *Manager) Delete(ctx context.Context, name string, sc Scope) error {
	def, err := m.definition(name)
	if err != nil {
		return err
	}
	key, err := scopeKey(def.Scope, sc, name)
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, key)
}

// Increment adds by to a number variable and returns the new value.
// The read-modify-write runs under the manager lock, so concurrent
// increments against one key can't lose updates.
func (m *Manager) Increment(ctx context.Context, name string, by float64, sc Scope) (float64, error) {
	def, err := m.definition(name)
	if err != nil {
		return 0, err
	}
	if def.Type != "number" {
		return 0, &NotNumeric{Name: name}
	}
	key, err := scopeKey(def.Scope, sc, name)
	if err != nil {
		return 0, err
	}

	m.Lock()
	defer m.Unlock()

	cur := 0.0
	val, err := m.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if val != nil {
		// Anything non-numeric in a number variable counts as 0.
		cur, _ = asNumber(val.V)
	} else if f, ok := asNumber(def.Default); ok {
		cur = f
	}

	next := cur + by
	if err := m.store.Set(ctx, key, storage.NewValue(next, "number", 0)); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) Decrement(ctx context.Context, name string, by float64, sc Scope) (float64, error) {
	return m.Increment(ctx, name, -by, sc)
}

// Snapshot reads every registered variable resolvable in sc.
// Variables whose scope id is absent are skipped, not errors: a DM
// has no guild, so guild variables just don't appear.
func (m *Manager) Snapshot(ctx context.Context, sc Scope) (map[string]interface{}, error) {
	m.RLock()
	defs := make(map[string]*VariableDef, len(m.vars))
	for name, def := range m.vars {
		defs[name] = def
	}
	m.RUnlock()

	out := make(map[string]interface{}, len(defs))
	for name, def := range defs {
		key, err := scopeKey(def.Scope, sc, name)
		if err != nil {
			continue
		}
		val, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if val == nil {
			out[name] = def.Default
			continue
		}
		out[name] = coerce(val.V, def.Type)
	}
	return out, nil
}

func (m *Manager) Insert(ctx context.Context, table string, row map[string]interface{}) (string, error) {
	if err := m.tableDef(table); err != nil {
		return "", err
	}
	return m.store.Insert(ctx, table, row)
}

func (m *Manager) Update(ctx context.Context, table string, where, set map[string]interface{}) (int, error) {
	if err := m.tableDef(table); err != nil {
		return 0, err
	}
	return m.store.Update(ctx, table, where, set)
}

func (m *Manager) DeleteRows(ctx context.Context, table string, where map[string]interface{}) (int, error) {
	if err := m.tableDef(table); err != nil {
		return 0, err
	}
	return m.store.DeleteRows(ctx, table, where)
}

func (m *Manager) Query(ctx context.Context, table string, q storage.QueryOptions) ([]map[string]interface{}, error) {
	if err := m.tableDef(table); err != nil {
		return nil, err
	}
	return m.store.Query(ctx, table, q)
}

// Cleanup sweeps expired values from the store and the cache.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	n, err := m.store.Cleanup(ctx)
	if err != nil {
		return n, err
	}
	return n + m.cacheSweep(), nil
}

// Close clears the cache and releases the adapter.
func (m *Manager) Close() error {
	m.cacheMu.Lock()
	m.cache = make(map[string]cacheEntry)
	m.cacheMu.Unlock()
	return m.store.Close()
}
