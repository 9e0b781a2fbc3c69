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
	"fmt"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
	"github.com/Comcast/rigging/storage"
)

func installState(reg *core.Registry) {
	reg.Register(&core.Handler{Name: "set_state", Validate: needFields("name"), Execute: setStateAction})
	reg.Register(&core.Handler{Name: "increment_state", Validate: needFields("name"), Execute: incrementStateAction})
	reg.Register(&core.Handler{Name: "decrement_state", Validate: needFields("name"), Execute: decrementStateAction})
	reg.Register(&core.Handler{Name: "delete_state", Validate: needFields("name"), Execute: deleteStateAction})
}

func installTables(reg *core.Registry) {
	reg.Register(&core.Handler{Name: "table_insert", Validate: needFields("table", "row"), Execute: tableInsertAction})
	reg.Register(&core.Handler{Name: "table_update", Validate: needFields("table", "where", "set"), Execute: tableUpdateAction})
	reg.Register(&core.Handler{Name: "table_delete", Validate: needFields("table", "where"), Execute: tableDeleteAction})
	reg.Register(&core.Handler{Name: "table_query", Validate: needFields("table"), Execute: tableQueryAction})
}

// into binds a result into the surrounding flow's scope when the
// action asks for it.  Outside a flow it's a no-op; the data is still
// the action's result.
func into(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, v interface{}) error {
	name, err := stringField(ctx, a, actx, deps, "into")
	if err != nil {
		return err
	}
	if name != "" && actx.Flow != nil {
		actx.Flow.SetVar(name, v)
	}
	return nil
}

// setStateAction writes a declared variable in the trigger's scope.
// An optional "ttl" makes the value expire.
func setStateAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	name, err := needString(ctx, a, actx, deps, "name")
	if err != nil {
		return nil, err
	}
	v, err := field(ctx, a, actx, deps, "value")
	if err != nil {
		return nil, err
	}
	sc := actx.Scope()
	ttlRaw, err := field(ctx, a, actx, deps, "ttl")
	if err != nil {
		return nil, err
	}
	if ttlRaw != nil {
		ttl, err := expr.ParseDuration(ttlRaw)
		if err != nil {
			return nil, err
		}
		return v, st.SetWithTTL(ctx, name, v, sc, ttl)
	}
	return v, st.Set(ctx, name, v, sc)
}

func byField(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (float64, error) {
	v, err := field(ctx, a, actx, deps, "by")
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case nil:
		return 1, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("%s %q is %T, not a number", a.Kind, "by", v)
}

func incrementStateAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	name, err := needString(ctx, a, actx, deps, "name")
	if err != nil {
		return nil, err
	}
	by, err := byField(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	n, err := st.Increment(ctx, name, by, actx.Scope())
	if err != nil {
		return nil, err
	}
	return n, into(ctx, a, actx, deps, n)
}

func decrementStateAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	name, err := needString(ctx, a, actx, deps, "name")
	if err != nil {
		return nil, err
	}
	by, err := byField(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	n, err := st.Decrement(ctx, name, by, actx.Scope())
	if err != nil {
		return nil, err
	}
	return n, into(ctx, a, actx, deps, n)
}

func deleteStateAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	name, err := needString(ctx, a, actx, deps, "name")
	if err != nil {
		return nil, err
	}
	return nil, st.Delete(ctx, name, actx.Scope())
}

func tableInsertAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	table, err := needString(ctx, a, actx, deps, "table")
	if err != nil {
		return nil, err
	}
	row, err := mapField(ctx, a, actx, deps, "row")
	if err != nil {
		return nil, err
	}
	id, err := st.Insert(ctx, table, row)
	if err != nil {
		return nil, err
	}
	data := map[string]interface{}{"id": id}
	return data, into(ctx, a, actx, deps, data)
}

func tableUpdateAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	table, err := needString(ctx, a, actx, deps, "table")
	if err != nil {
		return nil, err
	}
	where, err := mapField(ctx, a, actx, deps, "where")
	if err != nil {
		return nil, err
	}
	set, err := mapField(ctx, a, actx, deps, "set")
	if err != nil {
		return nil, err
	}
	n, err := st.Update(ctx, table, where, set)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"updated": n}, nil
}

func tableDeleteAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	table, err := needString(ctx, a, actx, deps, "table")
	if err != nil {
		return nil, err
	}
	where, err := mapField(ctx, a, actx, deps, "where")
	if err != nil {
		return nil, err
	}
	n, err := st.DeleteRows(ctx, table, where)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": n}, nil
}

// tableQueryAction reads rows.  "into" makes the rows a flow var for
// later actions.
func tableQueryAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	st, err := needState(deps)
	if err != nil {
		return nil, err
	}
	table, err := needString(ctx, a, actx, deps, "table")
	if err != nil {
		return nil, err
	}
	q := storage.QueryOptions{}
	if q.Where, err = mapField(ctx, a, actx, deps, "where"); err != nil {
		return nil, err
	}
	if q.OrderBy, err = stringField(ctx, a, actx, deps, "order_by"); err != nil {
		return nil, err
	}
	if v, err := field(ctx, a, actx, deps, "desc"); err != nil {
		return nil, err
	} else if b, is := v.(bool); is {
		q.Desc = b
	}
	if n, have, err := intField(ctx, a, actx, deps, "limit"); err != nil {
		return nil, err
	} else if have {
		q.Limit = n
	}
	if n, have, err := intField(ctx, a, actx, deps, "offset"); err != nil {
		return nil, err
	} else if have {
		q.Offset = n
	}

	rows, err := st.Query(ctx, table, q)
	if err != nil {
		return nil, err
	}
	generic := make([]interface{}, len(rows))
	for i, row := range rows {
		generic[i] = row
	}
	return generic, into(ctx, a, actx, deps, generic)
}
