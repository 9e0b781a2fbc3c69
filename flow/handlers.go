package flow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
)

// InstallHandlers registers the control-flow action kinds with reg.
//
// The handlers close over the engine so branch and loop bodies run
// through runBody, which honors return and abort.  Dispatch, "when"
// gating, and error handlers stay the executor's job, so a control
// action gets those exactly like any other action.
func (e *Engine) InstallHandlers(reg *core.Registry) {
	reg.Register(&core.Handler{Name: "flow_if", Validate: needFields("condition"), Execute: e.ifAction})
	reg.Register(&core.Handler{Name: "flow_switch", Validate: needFields("value"), Execute: e.switchAction})
	reg.Register(&core.Handler{Name: "flow_while", Validate: needFields("condition"), Execute: e.whileAction})
	reg.Register(&core.Handler{Name: "repeat", Validate: needFields("times"), Execute: e.repeatAction})
	reg.Register(&core.Handler{Name: "try", Validate: needFields("do"), Execute: e.tryAction})
	reg.Register(&core.Handler{Name: "parallel", Validate: needFields("actions"), Execute: e.parallelAction})
	reg.Register(&core.Handler{Name: "batch", Validate: needFields("items", "action"), Execute: e.batchAction})
	reg.Register(&core.Handler{Name: "call_flow", Validate: needFields("flow"), Execute: e.callFlowAction})
	reg.Register(&core.Handler{Name: "return", Execute: returnAction})
	reg.Register(&core.Handler{Name: "abort", Execute: abortAction})
	reg.Register(&core.Handler{Name: "wait", Validate: needFields("duration"), Execute: waitAction})
}

func needFields(names ...string) func(*core.Action) error {
	return func(a *core.Action) error {
		for _, name := range names {
			if _, have := a.Field(name); !have {
				return fmt.Errorf("%s needs %q", a.Kind, name)
			}
		}
		return nil
	}
}

// ifAction runs the "then" or "else" action list and reports which.
func (e *Engine) ifAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	cond, _ := a.Field("condition")
	ok, err := core.EvalCondition(ctx, cond, actx.Env(), deps)
	if err != nil {
		return nil, err
	}
	branch := "else"
	if ok {
		branch = "then"
	}
	body, err := core.NormalizeActions(a.Fields[branch])
	if err != nil {
		return nil, err
	}
	return ok, e.runBody(ctx, body, actx, deps)
}

// switchAction evaluates "value" (a string is an expression), picks
// the case whose label matches its rendering, and falls back to
// "default".  The matched key is the action's data.
func (e *Engine) switchAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	v, _ := a.Field("value")
	if s, is := v.(string); is {
		ev, err := deps.Evaluator.Evaluate(ctx, s, actx.Env())
		if err != nil {
			return nil, err
		}
		v = ev
	}
	key := switchKey(v)
	body, found := caseBody(a, key)
	if !found {
		body = a.Fields["default"]
	}
	actions, err := core.NormalizeActions(body)
	if err != nil {
		return nil, err
	}
	return key, e.runBody(ctx, actions, actx, deps)
}

func caseBody(a *core.Action, key string) (interface{}, bool) {
	cases, is := a.Fields["cases"].(map[string]interface{})
	if !is {
		return nil, false
	}
	body, have := cases[key]
	return body, have
}

// switchKey renders a switch value the way a case label reads:
// numbers without a trailing ".0", booleans as "true"/"false".
func switchKey(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// whileAction loops "do" while "condition" holds, giving up with a
// LimitError rather than spinning past the iteration cap.  Data is
// the number of completed iterations.
func (e *Engine) whileAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	cond, _ := a.Field("condition")
	body, err := core.NormalizeActions(a.Fields["do"])
	if err != nil {
		return nil, err
	}
	max := e.maxIterations()
	n := 0
	for {
		if ctx.Err() != nil || (actx.Flow != nil && actx.Flow.Done()) {
			break
		}
		ok, err := core.EvalCondition(ctx, cond, actx.Env(), deps)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if max <= n {
			return nil, &core.LimitError{What: "flow_while iterations", N: n + 1, Max: max}
		}
		if err := e.runBody(ctx, body, actx, deps); err != nil {
			return nil, err
		}
		n++
	}
	return n, nil
}

// repeatAction runs "do" a fixed number of times with the zero-based
// count bound to repeat_index.
func (e *Engine) repeatAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	times, _ := a.Field("times")
	v, err := deps.Evaluator.EvaluateTemplate(ctx, times, actx.Env())
	if err != nil {
		return nil, err
	}
	n, is := asInt(v)
	if !is {
		return nil, fmt.Errorf("repeat times %v (%T) is not a number", v, v)
	}
	if n < 0 {
		n = 0
	}
	if max := e.maxIterations(); max < n {
		return nil, &core.LimitError{What: "repeat iterations", N: n, Max: max}
	}
	body, err := core.NormalizeActions(a.Fields["do"])
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil || (actx.Flow != nil && actx.Flow.Done()) {
			break
		}
		if err := e.runBody(ctx, body, actx.WithLocal("repeat_index", i), deps); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// tryAction runs "do"; if that failed, "catch" runs with the failure
// bound to error, and its success clears the failure.  "finally" runs
// either way.  An abort in the body is not catchable: it is control
// flow, not an error.
func (e *Engine) tryAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	do, err := core.NormalizeActions(a.Fields["do"])
	if err != nil {
		return nil, err
	}
	catch, err := core.NormalizeActions(a.Fields["catch"])
	if err != nil {
		return nil, err
	}
	finally, err := core.NormalizeActions(a.Fields["finally"])
	if err != nil {
		return nil, err
	}

	failure := e.runBody(ctx, do, actx, deps)
	if failure != nil && 0 < len(catch) {
		cctx := actx.WithLocal("error", failure.Error())
		if err := e.runBody(ctx, catch, cctx, deps); err != nil {
			failure = err
		} else {
			failure = nil
		}
	}
	if err := e.runFinally(ctx, finally, actx, deps); err != nil && failure == nil {
		failure = err
	}
	return nil, failure
}

func (e *Engine) parallelAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	actions, err := core.NormalizeActions(a.Fields["actions"])
	if err != nil {
		return nil, err
	}
	results, err := deps.Executor.ExecuteParallel(ctx, actions, actx, deps)
	if err != nil {
		return nil, err
	}
	return resultData(results), nil
}

func (e *Engine) batchAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	raw, _ := a.Field("items")
	v, err := deps.Evaluator.EvaluateTemplate(ctx, raw, actx.Env())
	if err != nil {
		return nil, err
	}
	items, is := v.([]interface{})
	if !is {
		return nil, fmt.Errorf("batch items %T is not an array", v)
	}
	tmpl, err := core.NormalizeAction(a.Fields["action"])
	if err != nil {
		return nil, err
	}
	opts := core.BatchOptions{As: a.StringField("as")}
	if c, is := asInt(a.Fields["concurrency"]); is {
		opts.Concurrency = c
	}
	results, err := deps.Executor.ExecuteBatch(ctx, items, tmpl, actx, deps, opts)
	if err != nil {
		return nil, err
	}
	return resultData(results), nil
}

// callFlowAction invokes another flow.  The callee's return value is
// the action's data and, when "into" names a variable, lands in the
// calling scope too.
func (e *Engine) callFlowAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	name := a.StringField("flow")
	if name == "" {
		return nil, fmt.Errorf(`call_flow "flow" is not a name`)
	}
	var args map[string]interface{}
	if raw, have := a.Field("args"); have {
		v, err := deps.Evaluator.EvaluateTemplate(ctx, raw, actx.Env())
		if err != nil {
			return nil, err
		}
		m, is := v.(map[string]interface{})
		if !is {
			return nil, fmt.Errorf("call_flow args %T is not a map", v)
		}
		args = m
	}
	ret, err := e.Run(ctx, name, args, actx, deps)
	if err != nil {
		return nil, err
	}
	if into := a.StringField("into"); into != "" && actx.Flow != nil {
		actx.Flow.SetVar(into, ret)
	}
	return ret, nil
}

// returnAction sets the invocation's return value; the rest of the
// flow body is skipped by the engine's Done gate.
func returnAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	if actx.Flow == nil {
		return nil, fmt.Errorf("return outside a flow")
	}
	v, err := deps.Evaluator.EvaluateTemplate(ctx, a.Fields["value"], actx.Env())
	if err != nil {
		return nil, err
	}
	actx.Flow.SetReturn(v)
	return v, nil
}

// abortAction halts the current flow and its callers.
func abortAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	if actx.Flow == nil {
		return nil, fmt.Errorf("abort outside a flow")
	}
	var reason interface{}
	if raw, have := a.Field("reason"); have {
		v, err := deps.Evaluator.EvaluateTemplate(ctx, raw, actx.Env())
		if err != nil {
			return nil, err
		}
		reason = v
	}
	actx.Flow.Abort()
	return reason, nil
}

// waitAction sleeps for "duration" (a compound duration string like
// "1h30m" or milliseconds).  Cancellation reads as an abort, not a
// failure.
func waitAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	raw, _ := a.Field("duration")
	v, err := deps.Evaluator.EvaluateTemplate(ctx, raw, actx.Env())
	if err != nil {
		return nil, err
	}
	d, err := expr.ParseDuration(v)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, &core.FlowAbortedError{}
	}
}

func asInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	}
	return 0, false
}

// resultData summarizes executor results for the expression
// environment: plain maps, no Go error values.
func resultData(results []*core.ActionResult) []interface{} {
	acc := make([]interface{}, len(results))
	for i, r := range results {
		m := map[string]interface{}{"success": r.Success}
		if r.Data != nil {
			m["data"] = r.Data
		}
		if r.Err != nil {
			m["error"] = r.Err.Error()
		}
		acc[i] = m
	}
	return acc
}
