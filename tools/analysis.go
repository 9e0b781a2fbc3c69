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

package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Comcast/rigging/botspec"
	"github.com/Comcast/rigging/core"
)

// DocAnalysis reports the structure of a compiled document along with
// the complaints static inspection can find: calls to flows nobody
// defines, flows nothing calls, state actions naming undeclared
// variables or tables.
type DocAnalysis struct {
	doc *botspec.Document

	Errors []string

	Commands  int
	Events    int
	Flows     int
	Schedules int

	// Actions counts every action reachable from the document,
	// including control bodies.
	Actions int

	// Guarded counts actions with a "when" gate.
	Guarded int

	// Kinds lists the distinct action kinds used.
	Kinds []string

	// MissingFlows are call_flow or error_handler targets with no
	// definition.  DynamicFlows are targets computed at runtime,
	// which static inspection can't check.
	MissingFlows []string
	OrphanFlows  []string
	DynamicFlows []string

	// UnknownVariables and UnknownTables are literal names that
	// state and table actions use but the document never declares.
	UnknownVariables []string
	UnknownTables    []string
}

var stateKinds = map[string]bool{
	"set_state":       true,
	"increment_state": true,
	"decrement_state": true,
	"delete_state":    true,
}

var tableKinds = map[string]bool{
	"table_insert": true,
	"table_update": true,
	"table_delete": true,
	"table_query":  true,
}

// AnalyzeDoc inspects a compiled document.
func AnalyzeDoc(d *botspec.Document) (*DocAnalysis, error) {
	a := DocAnalysis{
		doc:       d,
		Commands:  len(d.Commands),
		Events:    len(d.Events),
		Flows:     len(d.Flows),
		Schedules: len(d.Schedules),
		Errors:    make([]string, 0, 8),
	}

	var (
		kinds     = make(map[string]bool)
		called    = make(map[string]bool)
		missing   = make(map[string]bool)
		dynamic   = make(map[string]bool)
		badVars   = make(map[string]bool)
		badTables = make(map[string]bool)
	)

	flowRef := func(name string) {
		switch {
		case name == "":
		case strings.Contains(name, "${"):
			dynamic[name] = true
		case d.Flows[name] == nil:
			missing[name] = true
		default:
			called[name] = true
		}
	}

	inspect := func(where string, acts []*core.Action) {
		errs := walkActions(acts, func(act *core.Action) {
			a.Actions++
			kinds[act.Kind] = true
			if act.When != nil {
				a.Guarded++
			}
			if act.ErrorHandler != "" {
				flowRef(act.ErrorHandler)
			}
			switch {
			case act.Kind == "call_flow":
				flowRef(act.StringField("flow"))
			case stateKinds[act.Kind]:
				if name := act.StringField("name"); name != "" && !strings.Contains(name, "${") {
					if d.Variables[name] == nil {
						badVars[name] = true
					}
				}
			case tableKinds[act.Kind]:
				if name := act.StringField("table"); name != "" && !strings.Contains(name, "${") {
					if d.Tables[name] == nil {
						badTables[name] = true
					}
				}
			}
		})
		for _, err := range errs {
			a.Errors = append(a.Errors, fmt.Sprintf("%s: %v", where, err))
		}
	}

	for _, c := range d.Commands {
		inspect("command "+c.Name, c.Actions)
	}
	for i, e := range d.Events {
		inspect(fmt.Sprintf("events[%d] (%s)", i, e.Event), e.Actions)
	}
	for _, name := range flowNames(d) {
		inspect("flow "+name, d.Flows[name].Actions)
	}
	for _, s := range d.Schedules {
		inspect("schedule "+s.Name, s.Actions)
	}

	orphans := make(map[string]bool)
	for name := range d.Flows {
		if !called[name] {
			orphans[name] = true
		}
	}

	a.Kinds = keysToStringSlice(kinds)
	a.MissingFlows = keysToStringSlice(missing)
	a.OrphanFlows = keysToStringSlice(orphans)
	a.DynamicFlows = keysToStringSlice(dynamic)
	a.UnknownVariables = keysToStringSlice(badVars)
	a.UnknownTables = keysToStringSlice(badTables)

	return &a, nil
}

// A FlowCall is one static call edge: a command, event, schedule, or
// flow reaching a flow through call_flow or error_handler.
type FlowCall struct {
	// From is "command:NAME", "event:NAME", "flow:NAME", or
	// "schedule:NAME".
	From string

	// To is the target flow's name (or the raw target when
	// Dynamic).
	To string

	// Rescue marks an error_handler edge.
	Rescue bool

	// Dynamic marks a target containing "${", unresolvable here.
	Dynamic bool
}

// FlowCalls extracts the static call graph of a compiled document.
func FlowCalls(d *botspec.Document) []FlowCall {
	var calls []FlowCall

	collect := func(from string, acts []*core.Action) {
		walkActions(acts, func(act *core.Action) {
			if act.Kind == "call_flow" {
				if to := act.StringField("flow"); to != "" {
					calls = append(calls, FlowCall{
						From:    from,
						To:      to,
						Dynamic: strings.Contains(to, "${"),
					})
				}
			}
			if act.ErrorHandler != "" {
				calls = append(calls, FlowCall{
					From:    from,
					To:      act.ErrorHandler,
					Rescue:  true,
					Dynamic: strings.Contains(act.ErrorHandler, "${"),
				})
			}
		})
	}

	for _, c := range d.Commands {
		collect("command:"+c.Name, c.Actions)
	}
	for _, e := range d.Events {
		collect("event:"+e.Event, e.Actions)
	}
	for _, name := range flowNames(d) {
		collect("flow:"+name, d.Flows[name].Actions)
	}
	for _, s := range d.Schedules {
		collect("schedule:"+s.Name, s.Actions)
	}

	return calls
}

// controlBodies maps a control kind to the fields that hold nested
// action lists.  flow_switch's labeled cases and batch's single
// "action" are special-cased in walkActions.
var controlBodies = map[string][]string{
	"flow_if":     {"then", "else"},
	"flow_while":  {"do"},
	"repeat":      {"do"},
	"try":         {"do", "catch", "finally"},
	"parallel":    {"actions"},
	"flow_switch": {"default"},
}

// walkActions calls fn for every action reachable from acts,
// descending into control bodies.  Bodies that won't normalize come
// back as errors; the walk continues past them.
func walkActions(acts []*core.Action, fn func(*core.Action)) []error {
	var errs []error

	descend := func(kind, field string, raw interface{}) {
		if raw == nil {
			return
		}
		body, err := core.NormalizeActions(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %v", kind, field, err))
			return
		}
		errs = append(errs, walkActions(body, fn)...)
	}

	for _, a := range acts {
		if a == nil {
			continue
		}
		fn(a)
		for _, field := range controlBodies[a.Kind] {
			if raw, have := a.Fields[field]; have {
				descend(a.Kind, field, raw)
			}
		}
		if a.Kind == "flow_switch" {
			if cases, is := a.Fields["cases"].(map[string]interface{}); is {
				labels := make([]string, 0, len(cases))
				for label := range cases {
					labels = append(labels, label)
				}
				sort.Strings(labels)
				for _, label := range labels {
					descend(a.Kind, "cases."+label, cases[label])
				}
			}
		}
		if a.Kind == "batch" {
			if raw, have := a.Fields["action"]; have && raw != nil {
				one, err := core.NormalizeAction(raw)
				if err != nil {
					errs = append(errs, fmt.Errorf("batch action: %v", err))
				} else {
					errs = append(errs, walkActions([]*core.Action{one}, fn)...)
				}
			}
		}
	}

	return errs
}

func flowNames(d *botspec.Document) []string {
	names := make([]string, 0, len(d.Flows))
	for name := range d.Flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// keysToStringSlice converts the keys from a map into a sorted slice,
// optionally substituting a default when the map is empty.
func keysToStringSlice(m map[string]bool, defaultValue ...string) []string {
	var list []string
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)

	if len(list) == 0 && 0 < len(defaultValue) {
		return []string{defaultValue[0]}
	}

	return list
}
