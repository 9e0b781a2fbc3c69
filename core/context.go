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
	"sync"

	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/state"
)

// An ActionContext is the per-invocation data bag: trigger
// projections, command options, a scoped state snapshot, and flow
// locals.  It's created fresh per trigger and passed by reference down
// the action chain; concurrent invocations never share one.
//
// The context carries no capabilities.  Handlers get those through
// Deps.
type ActionContext struct {
	// Event is the trigger's event name ("message_create",
	// "command:ping", ...).
	Event string

	User        *platform.User
	Member      *platform.Member
	Guild       *platform.Guild
	Channel     *platform.Channel
	Message     *platform.Message
	Interaction *platform.Interaction

	// Options holds decoded command arguments.  Expressions see it
	// as both "options" and "args".
	Options map[string]interface{}

	// Data holds extra event payload (a reaction, an old message
	// version) merged into the expression environment by key.
	Data map[string]interface{}

	// State is the scoped variable snapshot taken when the trigger
	// arrived.
	State map[string]interface{}

	// Flow is the current flow invocation's scope, nil outside any
	// flow.
	Flow *FlowScope

	// locals are per-context bindings (a batch's item and
	// item_index) that shadow everything else in the environment.
	locals map[string]interface{}
}

// Scope derives the state scope from the trigger's ids.
func (c *ActionContext) Scope() state.Scope {
	sc := state.Scope{}
	if c.Guild != nil {
		sc.GuildID = c.Guild.ID
	}
	if c.Channel != nil {
		sc.ChannelID = c.Channel.ID
		if sc.GuildID == "" {
			sc.GuildID = c.Channel.GuildID
		}
	}
	if c.Message != nil {
		if sc.ChannelID == "" {
			sc.ChannelID = c.Message.ChannelID
		}
		if sc.GuildID == "" {
			sc.GuildID = c.Message.GuildID
		}
	}
	if c.User != nil {
		sc.UserID = c.User.ID
	}
	return sc
}

// Env builds the expression environment.  Projections go in under
// fixed names; Data merges by key underneath them; flow vars appear as
// "vars"; locals shadow everything.
func (c *ActionContext) Env() map[string]interface{} {
	env := make(map[string]interface{}, 12+len(c.Data)+len(c.locals))
	for k, v := range c.Data {
		env[k] = v
	}
	if c.User != nil {
		env["user"] = c.User
	}
	if c.Member != nil {
		env["member"] = c.Member
	}
	if c.Guild != nil {
		env["guild"] = c.Guild
	}
	if c.Channel != nil {
		env["channel"] = c.Channel
	}
	if c.Message != nil {
		env["message"] = c.Message
	}
	if c.Interaction != nil {
		env["interaction"] = c.Interaction
	}
	env["event"] = c.Event

	opts := c.Options
	if opts == nil {
		opts = map[string]interface{}{}
	}
	env["options"] = opts
	env["args"] = opts

	if c.State != nil {
		env["state"] = c.State
	} else {
		env["state"] = map[string]interface{}{}
	}

	if c.Flow != nil {
		env["vars"] = c.Flow.Vars()
	} else {
		env["vars"] = map[string]interface{}{}
	}

	for k, v := range c.locals {
		env[k] = v
	}
	return env
}

// Clone makes a shallow copy sharing the projections and maps but with
// its own locals, so a batch item can bind variables without its
// siblings seeing them.
func (c *ActionContext) Clone() *ActionContext {
	d := *c
	d.locals = make(map[string]interface{}, len(c.locals)+2)
	for k, v := range c.locals {
		d.locals[k] = v
	}
	return &d
}

// WithLocal returns a clone with one more local binding.
func (c *ActionContext) WithLocal(name string, v interface{}) *ActionContext {
	d := c.Clone()
	d.locals[name] = v
	return d
}

// Aborted reports whether the surrounding flow (if any) has aborted.
func (c *ActionContext) Aborted() bool {
	return c.Flow != nil && c.Flow.Aborted()
}

// A FlowScope is one flow invocation's private record: its locals, its
// return value, and its abort flag.  The flow definition is shared and
// immutable; the scope is not, so concurrent invocations of one flow
// name each get their own.
type FlowScope struct {
	// FlowName is the invoked flow's name, for error messages.
	FlowName string

	parent *FlowScope

	mu       sync.Mutex
	vars     map[string]interface{}
	returned bool
	ret      interface{}
	aborted  bool
}

// NewFlowScope makes a scope for one invocation.  parent links to the
// caller's scope so an abort can halt the whole call chain.
func NewFlowScope(name string, parent *FlowScope) *FlowScope {
	return &FlowScope{
		FlowName: name,
		parent:   parent,
		vars:     make(map[string]interface{}),
	}
}

// SetVar binds a flow-local variable.
func (s *FlowScope) SetVar(name string, v interface{}) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// Var reads a flow-local variable.
func (s *FlowScope) Var(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, have := s.vars[name]
	return v, have
}

// Vars copies the flow-local bindings.
func (s *FlowScope) Vars() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]interface{}, len(s.vars))
	for k, v := range s.vars {
		m[k] = v
	}
	return m
}

// SetReturn records the flow's return value.  The first return wins.
func (s *FlowScope) SetReturn(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.returned {
		s.returned = true
		s.ret = v
	}
}

// Returned reports whether the flow returned, and with what.
func (s *FlowScope) Returned() (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ret, s.returned
}

// Abort halts this invocation and every calling flow up the chain.
func (s *FlowScope) Abort() {
	for p := s; p != nil; p = p.parent {
		p.mu.Lock()
		p.aborted = true
		p.mu.Unlock()
	}
}

// Aborted reports whether this invocation should stop.
func (s *FlowScope) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Done reports whether this invocation should run no further actions:
// it returned or it aborted.
func (s *FlowScope) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returned || s.aborted
}
