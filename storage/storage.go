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

// Package storage defines the persistence interface for bot state.
//
// A Store is a key/value space plus a lightweight table abstraction.
// Backends: storage/mem (process-local), storage/bolt (bbolt file),
// and storage/sqlite (real SQL tables via modernc.org/sqlite).
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// A Value is the envelope a Store keeps for each key.  The enclosed
// value must survive a JSON round-trip.
type Value struct {
	V         interface{} `json:"v"`
	Type      string      `json:"type,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

// NewValue wraps v, stamping CreatedAt/UpdatedAt with now.  A ttl of
// zero means the value never expires.
func NewValue(v interface{}, typ string, ttl time.Duration) *Value {
	now := time.Now().UTC()
	val := &Value{
		V:         v,
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if 0 < ttl {
		t := now.Add(ttl)
		val.ExpiresAt = &t
	}
	return val
}

// Expired reports whether the value's TTL has passed.  Every read
// path must check this: an expired value is gone even if a sweep
// hasn't reclaimed it yet.
func (v *Value) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

// A ColumnDef describes one column of a table.
type ColumnDef struct {
	// Type is one of "string", "number", "boolean", "json",
	// "timestamp".
	Type string `json:"type" yaml:"type"`

	Primary bool        `json:"primary,omitempty" yaml:"primary,omitempty"`
	Unique  bool        `json:"unique,omitempty" yaml:"unique,omitempty"`
	Index   bool        `json:"index,omitempty" yaml:"index,omitempty"`
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// A TableDef describes a table's shape.  Column order is not
// significant.
type TableDef struct {
	Columns map[string]*ColumnDef `json:"columns" yaml:"columns"`

	// Indexes lists composite indexes as column-name tuples.
	// Backends that don't index treat these as hints.
	Indexes [][]string `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// QueryOptions narrows and orders a table read.  Where clauses are
// conjunctions of column equality.
type QueryOptions struct {
	Where   map[string]interface{} `json:"where,omitempty" yaml:"where,omitempty"`
	OrderBy string                 `json:"orderBy,omitempty" yaml:"orderBy,omitempty"`
	Desc    bool                   `json:"desc,omitempty" yaml:"desc,omitempty"`
	Limit   int                    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset  int                    `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// A Store persists key/value state and table rows.
//
// Get returns (nil, nil) for a missing key.  Implementations must be
// safe for concurrent use, and none of them interpret keys: scoping
// and identifier policy live above this interface.
type Store interface {
	Get(ctx context.Context, key string) (*Value, error)
	Set(ctx context.Context, key string, val *Value) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)

	// Keys returns the keys matching pattern, where '*' matches any
	// run of characters, '?' matches one, and everything else is
	// literal.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Clear drops every key/value.  Table rows stay.
	Clear(ctx context.Context) error

	// Cleanup removes expired values and reports how many went.
	Cleanup(ctx context.Context) (int, error)

	CreateTable(ctx context.Context, name string, def *TableDef) error

	// Insert adds a row, filling column defaults and assigning an
	// "_id" when the row doesn't bring one.  A supplied "_id" must be
	// a non-empty string.  Insert returns the row id.
	Insert(ctx context.Context, table string, row map[string]interface{}) (string, error)
	Update(ctx context.Context, table string, where, set map[string]interface{}) (int, error)
	DeleteRows(ctx context.Context, table string, where map[string]interface{}) (int, error)
	Query(ctx context.Context, table string, q QueryOptions) ([]map[string]interface{}, error)

	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// BadIdent means a name wasn't a legal identifier.  Table and column
// names pass through ValidIdent before any backend sees them, so a
// hostile name never reaches SQL.
type BadIdent struct {
	Kind string
	Name string
}

func (e *BadIdent) Error() string {
	return fmt.Sprintf("bad %s identifier %q", e.Kind, e.Name)
}

// ValidIdent checks that name matches [A-Za-z_][A-Za-z0-9_]* and is at
// most 64 characters.
func ValidIdent(kind, name string) error {
	if !identRe.MatchString(name) {
		return &BadIdent{Kind: kind, Name: name}
	}
	return nil
}

// UnknownTable means nobody registered a table with that name.
type UnknownTable struct {
	Name string
}

func (e *UnknownTable) Error() string {
	return fmt.Sprintf("unknown table %q", e.Name)
}

// UnknownColumn means a row or where clause used a column the table
// definition doesn't have.
type UnknownColumn struct {
	Table  string
	Column string
}

func (e *UnknownColumn) Error() string {
	return fmt.Sprintf("unknown column %q in table %q", e.Column, e.Table)
}

// Duplicate means an insert would repeat a value in a primary or
// unique column.
type Duplicate struct {
	Table  string
	Column string
}

func (e *Duplicate) Error() string {
	return fmt.Sprintf("duplicate value for unique column %q in table %q", e.Column, e.Table)
}

// BadRowID means a caller supplied an "_id" that wasn't a non-empty
// string.  Row ids are strings everywhere, so anything else is refused
// before it reaches a backend.
type BadRowID struct {
	Table string
	Value interface{}
}

func (e *BadRowID) Error() string {
	return fmt.Sprintf("bad _id %v (%T) for table %q", e.Value, e.Value, e.Table)
}

// MaxPatternLen caps Keys patterns.  Longer patterns are refused
// rather than compiled.
const MaxPatternLen = 256

// GlobRegexp compiles a glob into an anchored regexp: '*' matches any
// run of characters, '?' matches exactly one, and everything else is
// matched literally.
func GlobRegexp(pattern string) (*regexp.Regexp, error) {
	if MaxPatternLen < len(pattern) {
		return nil, fmt.Errorf("pattern longer than %d bytes", MaxPatternLen)
	}
	var b strings.Builder
	b.WriteString("^")
	lit := 0
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '*' && c != '?' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(pattern[lit:i]))
		if c == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(".")
		}
		lit = i + 1
	}
	b.WriteString(regexp.QuoteMeta(pattern[lit:]))
	b.WriteString("$")
	return regexp.Compile(b.String())
}
