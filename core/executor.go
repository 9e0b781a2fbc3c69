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

package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/Comcast/rigging/expr"
	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/state"
)

// Deps carries the capabilities a handler may use.  Passing them as an
// argument (instead of smuggling them through the context) keeps the
// context pure data and makes each handler's reach explicit.
//
// Flows and Router are interfaces here so the flow engine and event
// router can live in their own packages on top of this one.
type Deps struct {
	Evaluator *expr.Evaluator
	State     *state.Manager
	Registry  *Registry
	Executor  *Executor
	Flows     FlowRunner
	Router    Emitter
	Client    platform.Client
}

// A FlowRunner invokes a named flow and reports its return value.
type FlowRunner interface {
	Run(ctx context.Context, name string, args map[string]interface{}, actx *ActionContext, deps *Deps) (interface{}, error)
}

// An Emitter dispatches an event to its registered handlers.
type Emitter interface {
	Emit(ctx context.Context, event string, actx *ActionContext, deps *Deps) error
}

// An ActionResult is one action's outcome.  A skipped action (false
// "when") succeeds with nil Data.
type ActionResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Err     error       `json:"-"`

	// Handled means the action failed but its error_handler flow
	// ran; a sequence continues past a handled failure.
	Handled bool `json:"handled,omitempty"`
}

// Aborted reports whether this result came from cancellation rather
// than a handler failure.
func (r *ActionResult) Aborted() bool {
	_, is := r.Err.(*FlowAbortedError)
	return is
}

const (
	// DefaultMaxActions caps a single sequence.
	DefaultMaxActions = 1000

	// DefaultMaxParallel caps a parallel group and batch
	// concurrency.
	DefaultMaxParallel = 10
)

// An Executor runs actions.  The zero value works with the default
// limits.
type Executor struct {
	MaxActions  int
	MaxParallel int
}

func NewExecutor() *Executor {
	return &Executor{
		MaxActions:  DefaultMaxActions,
		MaxParallel: DefaultMaxParallel,
	}
}

func (x *Executor) maxActions() int {
	if 0 < x.MaxActions {
		return x.MaxActions
	}
	return DefaultMaxActions
}

func (x *Executor) maxParallel() int {
	if 0 < x.MaxParallel {
		return x.MaxParallel
	}
	return DefaultMaxParallel
}

func abortedResult(actx *ActionContext) *ActionResult {
	e := &FlowAbortedError{}
	if actx.Flow != nil {
		e.Flow = actx.Flow.FlowName
	}
	return &ActionResult{Err: e}
}

// ExecuteOne runs a single action.
//
// Runtime failures of every flavor come back as a failed result, never
// as a Go error: a cancelled context or aborted flow yields an aborted
// result without invoking the handler; a false "when" yields success
// with nil data; validation rejections, handler errors, and handler
// panics all wrap into *ActionExecutionError on the result.
func (x *Executor) ExecuteOne(ctx context.Context, a *Action, actx *ActionContext, deps *Deps) *ActionResult {
	if ctx.Err() != nil || actx.Aborted() {
		return abortedResult(actx)
	}

	if a.When != nil {
		ok, err := EvalCondition(ctx, a.When, actx.Env(), deps)
		if err != nil {
			return &ActionResult{Err: err}
		}
		if !ok {
			return &ActionResult{Success: true}
		}
	}

	h, have := deps.Registry.Handler(a.Kind)
	if !have {
		return &ActionResult{Err: &UnknownAction{Kind: a.Kind}}
	}

	if h.Validate != nil {
		if err := h.Validate(a); err != nil {
			return x.failed(ctx, a, actx, deps, err)
		}
	}

	data, err := runHandler(ctx, h, a, actx, deps)
	if err != nil {
		// A handler reporting an abort (a cancelled wait, say) is
		// control flow, not a failure, so it skips error handlers.
		if fae, is := err.(*FlowAbortedError); is {
			return &ActionResult{Err: fae}
		}
		return x.failed(ctx, a, actx, deps, err)
	}
	return &ActionResult{Success: true, Data: data}
}

func runHandler(ctx context.Context, h *Handler, a *Action, actx *ActionContext, deps *Deps) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(ctx, a, actx, deps)
}

// failed wraps cause and, if the action names an error handler flow,
// runs it.  A failure whose error flow ran counts as handled.
func (x *Executor) failed(ctx context.Context, a *Action, actx *ActionContext, deps *Deps, cause error) *ActionResult {
	wrapped := &ActionExecutionError{Kind: a.Kind, Err: cause}
	r := &ActionResult{Err: wrapped}
	if a.ErrorHandler == "" || deps.Flows == nil {
		return r
	}
	args := map[string]interface{}{
		"error":         wrapped.Error(),
		"failed_action": a.Kind,
	}
	if _, err := deps.Flows.Run(ctx, a.ErrorHandler, args, actx, deps); err != nil {
		Warnf("error handler %q failed too: %v", a.ErrorHandler, err)
		return r
	}
	r.Handled = true
	return r
}

// ExecuteSequence runs actions in declared order, stopping at the
// first unhandled failure.
func (x *Executor) ExecuteSequence(ctx context.Context, actions []*Action, actx *ActionContext, deps *Deps) ([]*ActionResult, error) {
	return x.ExecuteSequenceWith(ctx, actions, actx, deps, true)
}

// ExecuteSequenceWith runs actions in declared order: total order of
// start and completion, no overlap.
//
// Exceeding MaxActions is a synchronous error.  Cancellation between
// actions stops the run with the results gathered so far.  With
// stopOnError, the first unhandled failure ends the run; its result is
// the last one returned.
func (x *Executor) ExecuteSequenceWith(ctx context.Context, actions []*Action, actx *ActionContext, deps *Deps, stopOnError bool) ([]*ActionResult, error) {
	if max := x.maxActions(); max < len(actions) {
		return nil, &LimitError{What: "actions", N: len(actions), Max: max}
	}
	results := make([]*ActionResult, 0, len(actions))
	for _, a := range actions {
		if ctx.Err() != nil || actx.Aborted() {
			break
		}
		r := x.ExecuteOne(ctx, a, actx, deps)
		results = append(results, r)
		if stopOnError && !r.Success && !r.Handled {
			break
		}
	}
	return results, nil
}

// ExecuteParallel runs all actions concurrently and returns results
// positionally aligned with the input.  A failing action never stops
// its siblings.  If the context is already cancelled, every slot gets
// an aborted result.
func (x *Executor) ExecuteParallel(ctx context.Context, actions []*Action, actx *ActionContext, deps *Deps) ([]*ActionResult, error) {
	if max := x.maxParallel(); max < len(actions) {
		return nil, &LimitError{What: "parallel actions", N: len(actions), Max: max}
	}
	results := make([]*ActionResult, len(actions))
	if ctx.Err() != nil || actx.Aborted() {
		for i := range results {
			results[i] = abortedResult(actx)
		}
		return results, nil
	}

	var wg sync.WaitGroup
	for i, a := range actions {
		wg.Add(1)
		go func(i int, a *Action) {
			defer wg.Done()
			results[i] = x.ExecuteOne(ctx, a, actx, deps)
		}(i, a)
	}
	wg.Wait()
	return results, nil
}

// BatchOptions configures ExecuteBatch.
type BatchOptions struct {
	// As renames the per-item binding.  Default "item".
	As string

	// Concurrency bounds the worker fan-out.  Default 1 (strictly
	// sequential); capped at MaxParallel.
	Concurrency int
}

// ExecuteBatch runs the template once per item.  Each run sees the
// item as a local binding (plus a 0-based "item_index"), so items
// never leak between runs.  Once cancellation or an abort is observed,
// no further items begin; their slots come back aborted.
func (x *Executor) ExecuteBatch(ctx context.Context, items []interface{}, template *Action, actx *ActionContext, deps *Deps, opts BatchOptions) ([]*ActionResult, error) {
	as := opts.As
	if as == "" {
		as = "item"
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if max := x.maxParallel(); max < workers {
		workers = max
	}
	if len(items) < workers {
		workers = len(items)
	}

	results := make([]*ActionResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				c := actx.Clone()
				c.locals[as] = items[i]
				c.locals["item_index"] = i
				results[i] = x.ExecuteOne(ctx, template, c, deps)
			}
		}()
	}
	for i := range items {
		if ctx.Err() != nil || actx.Aborted() {
			break
		}
		next <- i
	}
	close(next)
	wg.Wait()

	for i, r := range results {
		if r == nil {
			results[i] = abortedResult(actx)
		}
	}
	return results, nil
}
