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

package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/state"
	"github.com/Comcast/rigging/storage"
	"github.com/Comcast/rigging/storage/mem"
)

func stateDeps(t *testing.T) *core.Deps {
	t.Helper()
	deps, _ := testDeps(t)
	m := state.NewManager(mem.NewStore())
	if err := m.RegisterVariables(map[string]*state.VariableDef{
		"warnings": {Type: "number", Scope: "user", Default: float64(0)},
		"motto":    {Type: "string", Scope: "guild", Default: "d'oh"},
		"greeting": {Type: "string"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterTables(context.Background(), map[string]*storage.TableDef{
		"reminders": {Columns: map[string]*storage.ColumnDef{
			"who":  {Type: "string"},
			"what": {Type: "string"},
		}},
	}); err != nil {
		t.Fatal(err)
	}
	deps.State = m
	return deps
}

func managerVar(t *testing.T, deps *core.Deps, name string, sc state.Scope) interface{} {
	t.Helper()
	v, err := deps.State.Get(context.Background(), name, sc)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestSetState(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()

	mustRun(t, deps, actx, map[string]interface{}{
		"set_state": map[string]interface{}{
			"name":  "motto",
			"value": "hello ${user.username}",
		},
	})
	if v := managerVar(t, deps, "motto", state.Scope{GuildID: "g1"}); v != "hello homer" {
		t.Fatal(v)
	}

	// Another guild still sees the default.
	if v := managerVar(t, deps, "motto", state.Scope{GuildID: "g2"}); v != "d'oh" {
		t.Fatal(v)
	}
}

func TestSetStateTTL(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()

	mustRun(t, deps, actx, map[string]interface{}{
		"set_state": map[string]interface{}{
			"name":  "greeting",
			"value": "fleeting",
			"ttl":   "30ms",
		},
	})
	if v := managerVar(t, deps, "greeting", state.Scope{}); v != "fleeting" {
		t.Fatal(v)
	}
	time.Sleep(60 * time.Millisecond)
	if v := managerVar(t, deps, "greeting", state.Scope{}); v != nil {
		t.Fatalf("still here after its ttl: %#v", v)
	}
}

func TestIncrementDecrement(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()
	actx.Flow = core.NewFlowScope("tally", nil)

	r := mustRun(t, deps, actx, map[string]interface{}{
		"increment_state": map[string]interface{}{
			"name": "warnings",
			"into": "count",
		},
	})
	if r.Data != float64(1) {
		t.Fatal(r.Data)
	}
	if v, have := actx.Flow.Var("count"); !have || v != float64(1) {
		t.Fatal(v)
	}

	mustRun(t, deps, actx, map[string]interface{}{
		"increment_state": map[string]interface{}{
			"name": "warnings",
			"by":   float64(4),
		},
	})
	if v := managerVar(t, deps, "warnings", state.Scope{UserID: "u-homer"}); v != float64(5) {
		t.Fatal(v)
	}

	// bart's count is his own.
	if v := managerVar(t, deps, "warnings", state.Scope{UserID: "u-bart"}); v != float64(0) {
		t.Fatal(v)
	}

	r = mustRun(t, deps, actx, map[string]interface{}{
		"decrement_state": map[string]interface{}{
			"name": "warnings",
			"by":   float64(2),
		},
	})
	if r.Data != float64(3) {
		t.Fatal(r.Data)
	}
}

func TestDeleteState(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()

	mustRun(t, deps, actx, map[string]interface{}{
		"set_state": map[string]interface{}{"name": "motto", "value": "woo hoo"},
	})
	mustRun(t, deps, actx, map[string]interface{}{
		"delete_state": map[string]interface{}{"name": "motto"},
	})
	if v := managerVar(t, deps, "motto", state.Scope{GuildID: "g1"}); v != "d'oh" {
		t.Fatal(v)
	}
}

func TestUnknownVariable(t *testing.T) {
	deps := stateDeps(t)

	r := run(t, deps, msgContext(), map[string]interface{}{
		"set_state": map[string]interface{}{"name": "nachos", "value": 1},
	})
	if r.Success || !strings.Contains(r.Err.Error(), `unknown variable "nachos"`) {
		t.Fatalf("got %#v", r)
	}
}

func TestNoStateManager(t *testing.T) {
	deps, _ := testDeps(t)

	r := run(t, deps, msgContext(), map[string]interface{}{
		"set_state": map[string]interface{}{"name": "motto", "value": 1},
	})
	if r.Success || !strings.Contains(r.Err.Error(), "no state manager") {
		t.Fatalf("got %#v", r)
	}
}

func TestTableActions(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()
	actx.Flow = core.NewFlowScope("chores", nil)

	r := mustRun(t, deps, actx, map[string]interface{}{
		"table_insert": map[string]interface{}{
			"table": "reminders",
			"row": map[string]interface{}{
				"who":  "${user.username}",
				"what": "buy tacos",
			},
			"into": "added",
		},
	})
	data, is := r.Data.(map[string]interface{})
	if !is || data["id"] == "" {
		t.Fatalf("got %#v", r.Data)
	}
	if v, have := actx.Flow.Var("added"); !have || v == nil {
		t.Fatal(v)
	}

	mustRun(t, deps, actx, map[string]interface{}{
		"table_insert": map[string]interface{}{
			"table": "reminders",
			"row":   map[string]interface{}{"who": "homer", "what": "buy queso"},
		},
	})
	mustRun(t, deps, actx, map[string]interface{}{
		"table_insert": map[string]interface{}{
			"table": "reminders",
			"row":   map[string]interface{}{"who": "bart", "what": "skateboard"},
		},
	})

	r = mustRun(t, deps, actx, map[string]interface{}{
		"table_query": map[string]interface{}{
			"table": "reminders",
			"where": map[string]interface{}{"who": "homer"},
		},
	})
	rows, is := r.Data.([]interface{})
	if !is || len(rows) != 2 {
		t.Fatalf("got %#v", r.Data)
	}

	r = mustRun(t, deps, actx, map[string]interface{}{
		"table_update": map[string]interface{}{
			"table": "reminders",
			"where": map[string]interface{}{"what": "buy tacos"},
			"set":   map[string]interface{}{"what": "buy chips"},
		},
	})
	if data, is := r.Data.(map[string]interface{}); !is || data["updated"] != 1 {
		t.Fatalf("got %#v", r.Data)
	}

	r = mustRun(t, deps, actx, map[string]interface{}{
		"table_delete": map[string]interface{}{
			"table": "reminders",
			"where": map[string]interface{}{"who": "homer"},
		},
	})
	if data, is := r.Data.(map[string]interface{}); !is || data["deleted"] != 2 {
		t.Fatalf("got %#v", r.Data)
	}

	r = mustRun(t, deps, actx, map[string]interface{}{
		"table_query": map[string]interface{}{"table": "reminders"},
	})
	if rows, is := r.Data.([]interface{}); !is || len(rows) != 1 {
		t.Fatalf("got %#v", r.Data)
	}
}

func TestTableQueryOptions(t *testing.T) {
	deps := stateDeps(t)
	actx := msgContext()

	for _, what := range []string{"alpha", "beta", "gamma"} {
		mustRun(t, deps, actx, map[string]interface{}{
			"table_insert": map[string]interface{}{
				"table": "reminders",
				"row":   map[string]interface{}{"who": "lisa", "what": what},
			},
		})
	}

	r := mustRun(t, deps, actx, map[string]interface{}{
		"table_query": map[string]interface{}{
			"table":    "reminders",
			"order_by": "what",
			"desc":     true,
			"limit":    2,
			"offset":   1,
		},
	})
	rows, is := r.Data.([]interface{})
	if !is || len(rows) != 2 {
		t.Fatalf("got %#v", r.Data)
	}
	first, is := rows[0].(map[string]interface{})
	if !is || first["what"] != "beta" {
		t.Fatalf("got %#v", rows[0])
	}
	second, is := rows[1].(map[string]interface{})
	if !is || second["what"] != "alpha" {
		t.Fatalf("got %#v", rows[1])
	}
}

func TestUnknownTable(t *testing.T) {
	deps := stateDeps(t)

	r := run(t, deps, msgContext(), map[string]interface{}{
		"table_insert": map[string]interface{}{
			"table": "noodles",
			"row":   map[string]interface{}{"who": "x"},
		},
	})
	if r.Success || !strings.Contains(r.Err.Error(), "noodles") {
		t.Fatalf("got %#v", r)
	}
}
