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

// Package event routes named events to registered handler definitions.
//
// A handler is gated three ways before its actions run: a "when"
// condition, a debounce window (trailing edge: the last emission in
// the window runs, later and asynchronously), or a throttle window
// (leading edge: the first emission runs, the rest of the window
// drops).  Debounce wins when both are set.
//
// Handler failures, including those of debounced firings that happen
// after Emit returned, go to the router's Errors channel, or to the
// log when nobody wired one.
package event

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
)

// A Definition declares one event handler.
type Definition struct {
	// Event names the event this handler listens for.
	Event string `json:"event" yaml:"event"`

	// When optionally gates each emission (an expression string or
	// a condition map).  A false condition is a no-op, not a fire.
	When interface{} `json:"when,omitempty" yaml:"when,omitempty"`

	// Once retires the handler after its first real firing.  It
	// stays registered, inactive.
	Once bool `json:"once,omitempty" yaml:"once,omitempty"`

	// Debounce and Throttle are windows ("2s", or milliseconds as
	// a number).  At most one applies; Debounce is checked first.
	Debounce interface{} `json:"debounce,omitempty" yaml:"debounce,omitempty"`
	Throttle interface{} `json:"throttle,omitempty" yaml:"throttle,omitempty"`

	// Actions run, in order, for each firing.
	Actions []*core.Action `json:"-" yaml:"-"`
}

// A Handler is one registered Definition plus its firing state.
type Handler struct {
	id       string
	def      *Definition
	debounce time.Duration
	throttle time.Duration

	mu      sync.Mutex
	active  bool
	lastRun time.Time
}

func (h *Handler) ID() string              { return h.id }
func (h *Handler) Definition() *Definition { return h.def }

// Active reports whether the handler can still fire.  A spent "once"
// handler stays registered but inactive.
func (h *Handler) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// claim is the fire gate: it reports whether the handler may run now
// and retires a "once" handler in the same step.
func (h *Handler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false
	}
	if h.def.Once {
		h.active = false
	}
	return true
}

// claimWindow reports whether a throttled handler's window is open,
// opening the next window when it is.
func (h *Handler) claimWindow(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.lastRun.IsZero() && now.Sub(h.lastRun) < h.throttle {
		return false
	}
	h.lastRun = now
	return true
}

// pendingRun is one armed debounce timer.  A newer emission closes ctl
// and arms a fresh one, which is how "last args win" falls out.
type pendingRun struct {
	ctl chan bool
}

// A Router maps event names to ordered handler lists.  It implements
// core.Emitter.
type Router struct {
	// Errors receives handler failures when set; otherwise they're
	// logged.  Sends block, so give it a consumer.
	Errors chan error `json:"-" yaml:"-"`

	mu       sync.Mutex
	handlers map[string][]*Handler
	byID     map[string]*Handler
	pending  map[string]*pendingRun
	done     chan bool
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string][]*Handler, 16),
		byID:     make(map[string]*Handler, 16),
		pending:  make(map[string]*pendingRun, 8),
		done:     make(chan bool),
	}
}

// Register adds a handler and returns its id.
func (r *Router) Register(def *Definition) (string, error) {
	if def == nil || def.Event == "" {
		return "", fmt.Errorf("handler definition needs an event name")
	}
	h := &Handler{
		id:     uuid.NewString(),
		def:    def,
		active: true,
	}
	var err error
	if h.debounce, err = window(def.Debounce); err != nil {
		return "", fmt.Errorf("bad debounce: %w", err)
	}
	if h.throttle, err = window(def.Throttle); err != nil {
		return "", fmt.Errorf("bad throttle: %w", err)
	}

	r.mu.Lock()
	r.handlers[def.Event] = append(r.handlers[def.Event], h)
	r.byID[h.id] = h
	r.mu.Unlock()
	return h.id, nil
}

// RegisterAll registers definitions in order, stopping at the first
// bad one.
func (r *Router) RegisterAll(defs []*Definition) ([]string, error) {
	ids := make([]string, 0, len(defs))
	for i, def := range defs {
		id, err := r.Register(def)
		if err != nil {
			return ids, fmt.Errorf("handler %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func window(x interface{}) (time.Duration, error) {
	if x == nil {
		return 0, nil
	}
	return expr.ParseDuration(x)
}

// Unregister removes a handler and cancels its pending debounce
// firing, reporting whether the id was known.
func (r *Router) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, have := r.byID[id]
	if !have {
		return false
	}
	delete(r.byID, id)
	list := r.handlers[h.def.Event]
	for i, x := range list {
		if x == h {
			r.handlers[h.def.Event] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[h.def.Event]) == 0 {
		delete(r.handlers, h.def.Event)
	}
	if ent, armed := r.pending[id]; armed {
		close(ent.ctl)
		delete(r.pending, id)
	}
	return true
}

// Events lists event names with at least one registered handler,
// sorted.
func (r *Router) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// Handlers snapshots the registration-ordered handler list for an
// event.
func (r *Router) Handlers(event string) []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[event]
	acc := make([]*Handler, len(list))
	copy(acc, list)
	return acc
}

// Clear drops every handler and pending debounce firing.  The router
// stays usable.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ent := range r.pending {
		close(ent.ctl)
	}
	r.handlers = make(map[string][]*Handler, 16)
	r.byID = make(map[string]*Handler, 16)
	r.pending = make(map[string]*pendingRun, 8)
}

// Close clears the router and stops any still-armed debounce
// goroutines.
func (r *Router) Close() error {
	r.Clear()
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.mu.Unlock()
	return nil
}

// Emit runs the event's handlers in registration order.  Inactive
// handlers and false conditions are no-ops; a debounced handler only
// arms its timer here.  Handler failures go to the Errors channel,
// not to Emit's caller.
func (r *Router) Emit(ctx context.Context, event string, actx *core.ActionContext, deps *core.Deps) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ectx := actx.Clone()
	ectx.Event = event

	for _, h := range r.Handlers(event) {
		if !h.Active() {
			continue
		}
		if h.def.When != nil {
			ok, err := core.EvalCondition(ctx, h.def.When, ectx.Env(), deps)
			if err != nil {
				r.err(fmt.Errorf("event %q handler condition: %w", event, err))
				continue
			}
			if !ok {
				continue
			}
		}
		switch {
		case 0 < h.debounce:
			r.armDebounce(ctx, h, ectx, deps)
		case 0 < h.throttle:
			if h.claimWindow(time.Now()) {
				r.run(ctx, h, ectx, deps)
			}
		default:
			r.run(ctx, h, ectx, deps)
		}
	}
	return nil
}

// armDebounce replaces the handler's pending firing, if any, with one
// carrying this emission's context.  The last emission's context
// governs the delayed run.
func (r *Router) armDebounce(ctx context.Context, h *Handler, actx *core.ActionContext, deps *core.Deps) {
	ent := &pendingRun{ctl: make(chan bool)}
	r.mu.Lock()
	if old, armed := r.pending[h.id]; armed {
		close(old.ctl)
	}
	r.pending[h.id] = ent
	r.mu.Unlock()

	go func() {
		timer := time.NewTimer(h.debounce)
		defer timer.Stop()
		select {
		case <-r.done:
			r.forget(h.id, ent)
		case <-ent.ctl:
			// Superseded or unregistered.
		case <-timer.C:
			if r.forget(h.id, ent) {
				r.run(ctx, h, actx, deps)
			}
		}
	}()
}

// forget removes the handler's pending entry if it is still ent.
func (r *Router) forget(id string, ent *pendingRun) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, armed := r.pending[id]; armed && cur == ent {
		delete(r.pending, id)
		return true
	}
	return false
}

func (r *Router) run(ctx context.Context, h *Handler, actx *core.ActionContext, deps *core.Deps) {
	if !h.claim() {
		return
	}
	results, err := deps.Executor.ExecuteSequence(ctx, h.def.Actions, actx, deps)
	if err != nil {
		r.err(fmt.Errorf("event %q handler %s: %w", h.def.Event, h.id, err))
		return
	}
	for _, res := range results {
		if !res.Success && !res.Handled && res.Err != nil && !res.Aborted() {
			r.err(fmt.Errorf("event %q handler %s: %w", h.def.Event, h.id, res.Err))
		}
	}
}

func (r *Router) err(err error) {
	if r.Errors != nil {
		r.Errors <- err
	} else {
		log.Println(err)
	}
}
