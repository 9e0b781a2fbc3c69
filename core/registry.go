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
	"sort"
	"sync"
)

// A Handler interprets one action kind.
type Handler struct {
	// Name is the action kind this handler serves.
	Name string

	// Validate optionally rejects an action at execution time (and
	// at load time, if the loader chooses to call it).  A non-nil
	// error becomes an ActionExecutionError.
	Validate func(a *Action) error

	// Execute runs the action.  The returned value lands in
	// ActionResult.Data; a returned error (or a panic) becomes an
	// ActionExecutionError.
	Execute func(ctx context.Context, a *Action, actx *ActionContext, deps *Deps) (interface{}, error)
}

// A Registry maps action kinds to handlers.  Registering a name twice
// replaces the earlier handler: last registration wins, which is how
// an application overrides a built-in.
type Registry struct {
	sync.RWMutex
	handlers map[string]*Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]*Handler),
	}
}

func (r *Registry) Register(h *Handler) {
	r.Lock()
	r.handlers[h.Name] = h
	r.Unlock()
}

// Handler returns the handler for a kind.
func (r *Registry) Handler(kind string) (*Handler, bool) {
	r.RLock()
	defer r.RUnlock()
	h, have := r.handlers[kind]
	return h, have
}

// Kinds lists the registered action kinds, sorted.
func (r *Registry) Kinds() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}
