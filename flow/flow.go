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

// Package flow runs named, parameterized action sequences.
//
// A Flow is shared and immutable once registered.  Every invocation
// gets its own core.FlowScope (locals, return value, abort flag), so
// concurrent invocations of one flow name can't see each other.
//
// The engine owns the control actions (flow_if, flow_while, call_flow,
// return, abort, ...).  Their handlers evaluate conditions and values,
// then hand the branching and looping back to the engine; plain action
// kinds go through the executor like any other.  InstallHandlers wires
// the control kinds into a core.Registry.
package flow

import (
	"context"
	"sort"
	"sync"

	"github.com/Comcast/rigging/core"
)

// DefaultMaxIterations bounds flow_while and repeat loops.
const DefaultMaxIterations = 10000

// UnknownFlow occurs when call_flow (or a trigger) names a flow
// nobody registered.
type UnknownFlow struct {
	Name string
}

func (e *UnknownFlow) Error() string {
	return `unknown flow "` + e.Name + `"`
}

// A Param declares one flow parameter.  Missing arguments draw the
// default.
type Param struct {
	Name    string      `json:"name" yaml:"name"`
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// A Flow is a named action sequence.
type Flow struct {
	Name    string   `json:"name" yaml:"name"`
	Params  []*Param `json:"params,omitempty" yaml:"params,omitempty"`
	Actions []*core.Action
}

// An Engine holds flow definitions and runs invocations.  It
// implements core.FlowRunner.
type Engine struct {
	// MaxIterations bounds flow_while and repeat.  Zero means the
	// default.
	MaxIterations int

	mu    sync.RWMutex
	flows map[string]*Flow
}

func NewEngine() *Engine {
	return &Engine{
		MaxIterations: DefaultMaxIterations,
		flows:         make(map[string]*Flow),
	}
}

func (e *Engine) maxIterations() int {
	if 0 < e.MaxIterations {
		return e.MaxIterations
	}
	return DefaultMaxIterations
}

// Register adds a flow.  Re-registering a name replaces the earlier
// definition.
func (e *Engine) Register(f *Flow) error {
	if f == nil || f.Name == "" {
		return &UnknownFlow{Name: ""}
	}
	e.mu.Lock()
	e.flows[f.Name] = f
	e.mu.Unlock()
	return nil
}

func (e *Engine) flow(name string) (*Flow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, have := e.flows[name]
	if !have {
		return nil, &UnknownFlow{Name: name}
	}
	return f, nil
}

// Flows lists the registered flow names, sorted.
func (e *Engine) Flows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acc := make([]string, 0, len(e.flows))
	for name := range e.flows {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// Run invokes a flow and returns its return value (nil if the flow
// never hit a "return" action).
//
// The invocation's scope chains to the caller's, so an abort inside
// halts the calling flow too.  An abort is a control outcome, not an
// error: Run reports it by returning early with whatever return value
// was set.  A failing action inside the body (unhandled, under the
// default stop-on-error policy) is an error.
func (e *Engine) Run(ctx context.Context, name string, args map[string]interface{}, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	f, err := e.flow(name)
	if err != nil {
		return nil, err
	}

	scope := core.NewFlowScope(name, actx.Flow)
	for k, v := range args {
		scope.SetVar(k, v)
	}
	for _, p := range f.Params {
		if _, have := args[p.Name]; !have {
			scope.SetVar(p.Name, p.Default)
		}
	}

	fctx := actx.Clone()
	fctx.Flow = scope

	if err := e.runBody(ctx, f.Actions, fctx, deps); err != nil {
		return nil, err
	}
	ret, _ := scope.Returned()
	return ret, nil
}

// runBody runs a flow body (or a branch or loop body): declared order,
// stop on the first unhandled failure, stop once the scope returned or
// aborted.  An aborted run is not an error.
func (e *Engine) runBody(ctx context.Context, actions []*core.Action, actx *core.ActionContext, deps *core.Deps) error {
	if max := maxActions(deps); max < len(actions) {
		return &core.LimitError{What: "actions", N: len(actions), Max: max}
	}
	for _, a := range actions {
		if ctx.Err() != nil || (actx.Flow != nil && actx.Flow.Done()) {
			break
		}
		r := deps.Executor.ExecuteOne(ctx, a, actx, deps)
		if !r.Success && !r.Handled {
			if r.Aborted() {
				return nil
			}
			return r.Err
		}
	}
	return nil
}

// runFinally is runBody minus the returned/aborted gate: a "finally"
// list runs even after a return, though hard context cancellation
// still stops it.
func (e *Engine) runFinally(ctx context.Context, actions []*core.Action, actx *core.ActionContext, deps *core.Deps) error {
	fctx := finallyContext(actx)
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		r := deps.Executor.ExecuteOne(ctx, a, fctx, deps)
		if !r.Success && !r.Handled {
			if r.Aborted() {
				return nil
			}
			return r.Err
		}
	}
	return nil
}

// finallyContext gives finally actions a scope that hasn't returned or
// aborted, chained to nothing, so the executor doesn't short-circuit
// them.  Vars still come from the real scope by copying.
func finallyContext(actx *core.ActionContext) *core.ActionContext {
	if actx.Flow == nil || !actx.Flow.Done() {
		return actx
	}
	c := actx.Clone()
	fresh := core.NewFlowScope(actx.Flow.FlowName, nil)
	for k, v := range actx.Flow.Vars() {
		fresh.SetVar(k, v)
	}
	c.Flow = fresh
	return c
}

func maxActions(deps *core.Deps) int {
	if deps.Executor != nil && 0 < deps.Executor.MaxActions {
		return deps.Executor.MaxActions
	}
	return core.DefaultMaxActions
}
