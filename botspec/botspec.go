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

// Package botspec loads bot documents from YAML.
//
// A Document is pure declaration: commands, event handlers, flows,
// variables, tables, schedules.  Parsing alone gives you the raw
// shapes; Compile normalizes every action list into []*core.Action and
// checks names, option types, durations, and cron expressions, so a
// bad document fails at load rather than mid-conversation.
package botspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/jsccast/yaml"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/event"
	"github.com/Comcast/rigging/expr"
	"github.com/Comcast/rigging/flow"
	"github.com/Comcast/rigging/state"
	"github.com/Comcast/rigging/storage"
)

// A Document declares one bot.
//
// This data includes no runtime state.  A Document must be Compiled
// before the compiled fields (Actions, CooldownWindow) are usable; the
// Parse functions do that for you.
type Document struct {
	// Name identifies the bot.  Something like "taco-tuesday".
	// ParseFile defaults it to the file's base name.
	Name string `json:"name,omitempty" yaml:",omitempty"`

	// Doc is general documentation about what this bot does.
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Config carries assembly settings: command prefix, storage
	// backend.  Compile fills in the defaults.
	Config *Config `json:"config,omitempty" yaml:",omitempty"`

	// Commands are invoked explicitly ("!ping").
	Commands []*Command `json:"commands,omitempty" yaml:",omitempty"`

	// Events run on platform events.  One event name may have any
	// number of handlers; they run in declared order.
	Events []*Event `json:"events,omitempty" yaml:",omitempty"`

	// Flows are named action sequences commands and events can
	// call.
	Flows map[string]*Flow `json:"flows,omitempty" yaml:",omitempty"`

	// Variables declares the scoped state this bot can touch.
	Variables map[string]*state.VariableDef `json:"variables,omitempty" yaml:",omitempty"`

	// Tables declares row storage.
	Tables map[string]*storage.TableDef `json:"tables,omitempty" yaml:",omitempty"`

	// Schedules run actions on cron expressions.
	Schedules []*Schedule `json:"schedules,omitempty" yaml:",omitempty"`

	compiled bool
}

// Config is the assembly knobs a document can set.
type Config struct {
	// Prefix starts a command message.  Default "!".
	Prefix string `json:"prefix,omitempty" yaml:",omitempty"`

	// Storage picks the backend: "mem" (default), "bolt", or
	// "sqlite".
	Storage string `json:"storage,omitempty" yaml:",omitempty"`

	// Path is the database file for bolt and sqlite.
	Path string `json:"path,omitempty" yaml:",omitempty"`
}

// A Command is one explicitly invoked entry point.
type Command struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:",omitempty"`

	// Options declare the command's arguments.  Decoded values show
	// up in expressions as args.<name>.
	Options []*Option `json:"options,omitempty" yaml:",omitempty"`

	// Cooldown is a per-user window ("5s", or milliseconds as a
	// number) during which repeat invocations are refused.
	Cooldown interface{} `json:"cooldown,omitempty" yaml:",omitempty"`

	// ActionSources is the raw action list as parsed.
	ActionSources interface{} `json:"actions,omitempty" yaml:"actions,omitempty"`

	// Actions is the compiled form.  See Document.Compile.
	Actions []*core.Action `json:"-" yaml:"-"`

	// CooldownWindow is the compiled Cooldown.
	CooldownWindow time.Duration `json:"-" yaml:"-"`
}

// An Option is one command argument declaration.
type Option struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:",omitempty"`

	// Type is one of "string" (default), "number", "boolean",
	// "user", "channel", "role".
	Type string `json:"type,omitempty" yaml:",omitempty"`

	Required bool        `json:"required,omitempty" yaml:",omitempty"`
	Default  interface{} `json:"default,omitempty" yaml:",omitempty"`

	// Choices, when given, restrict the value to this list.
	Choices []interface{} `json:"choices,omitempty" yaml:",omitempty"`
}

// An Event is one event handler declaration.  Everything but the
// action list mirrors event.Definition; Definition() builds one.
type Event struct {
	Event    string      `json:"event" yaml:"event"`
	When     interface{} `json:"when,omitempty" yaml:",omitempty"`
	Once     bool        `json:"once,omitempty" yaml:",omitempty"`
	Debounce interface{} `json:"debounce,omitempty" yaml:",omitempty"`
	Throttle interface{} `json:"throttle,omitempty" yaml:",omitempty"`

	ActionSources interface{} `json:"actions,omitempty" yaml:"actions,omitempty"`

	Actions []*core.Action `json:"-" yaml:"-"`
}

// Definition builds the router registration for this handler.
func (ev *Event) Definition() *event.Definition {
	return &event.Definition{
		Event:    ev.Event,
		When:     ev.When,
		Once:     ev.Once,
		Debounce: ev.Debounce,
		Throttle: ev.Throttle,
		Actions:  ev.Actions,
	}
}

// A Flow is a named action sequence with declared parameters.  The
// map key in Document.Flows is the flow's name.
type Flow struct {
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	Params []*flow.Param `json:"params,omitempty" yaml:",omitempty"`

	ActionSources interface{} `json:"actions,omitempty" yaml:"actions,omitempty"`

	Actions []*core.Action `json:"-" yaml:"-"`
}

// A Schedule runs actions on a cron expression.  Seconds field
// optional, per cronexpr.
type Schedule struct {
	Name string `json:"name" yaml:"name"`
	Cron string `json:"cron" yaml:"cron"`

	ActionSources interface{} `json:"actions,omitempty" yaml:"actions,omitempty"`

	Actions []*core.Action `json:"-" yaml:"-"`
}

// BadDocument locates a load-time rejection.
type BadDocument struct {
	Where  string
	Reason string
}

func (e *BadDocument) Error() string {
	return fmt.Sprintf("bad document: %s: %s", e.Where, e.Reason)
}

var optionTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"user":    true,
	"channel": true,
	"role":    true,
}

// Parse loads and compiles a Document from YAML bytes.
func Parse(bs []byte) (*Document, error) {
	return ParseNamed(bs, "")
}

// ParseNamed parses and compiles YAML bytes, filling in name when the
// YAML names nobody.
func ParseNamed(bs []byte, name string) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(bs, &d); err != nil {
		return nil, err
	}
	if d.Name == "" {
		d.Name = name
	}
	if err := d.Compile(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseFile loads and compiles a Document from a YAML file.  A
// document with no name gets the file's base name.
func ParseFile(filename string) (*Document, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(filename)
	d, err := ParseNamed(bs, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return d, nil
}

// Compile normalizes every raw action list, fills defaults, and
// validates names, option types, durations, and cron expressions.
// Compiling twice is fine.
func (d *Document) Compile() error {
	if d.Name == "" {
		return &BadDocument{Where: "document", Reason: "no name"}
	}

	if d.Config == nil {
		d.Config = &Config{}
	}
	if d.Config.Prefix == "" {
		d.Config.Prefix = "!"
	}
	switch d.Config.Storage {
	case "":
		d.Config.Storage = "mem"
	case "mem":
	case "bolt", "sqlite":
		if d.Config.Path == "" {
			return &BadDocument{
				Where:  "config",
				Reason: fmt.Sprintf("storage %q needs a path", d.Config.Storage),
			}
		}
	default:
		return &BadDocument{
			Where:  "config",
			Reason: fmt.Sprintf("unknown storage %q", d.Config.Storage),
		}
	}

	names := make(map[string]bool, len(d.Commands))
	for _, c := range d.Commands {
		if c == nil || c.Name == "" {
			return &BadDocument{Where: "commands", Reason: "a command has no name"}
		}
		where := fmt.Sprintf("command %q", c.Name)
		if err := storage.ValidIdent("command", c.Name); err != nil {
			return &BadDocument{Where: where, Reason: err.Error()}
		}
		if names[c.Name] {
			return &BadDocument{Where: where, Reason: "duplicate name"}
		}
		names[c.Name] = true

		if err := c.compileOptions(where); err != nil {
			return err
		}

		if c.Cooldown != nil {
			window, err := expr.ParseDuration(c.Cooldown)
			if err != nil {
				return &BadDocument{Where: where, Reason: err.Error()}
			}
			c.CooldownWindow = window
		}

		acts, err := compileActions(where, c.ActionSources)
		if err != nil {
			return err
		}
		c.Actions = acts
	}

	for i, ev := range d.Events {
		if ev == nil || ev.Event == "" {
			return &BadDocument{
				Where:  fmt.Sprintf("events[%d]", i),
				Reason: "no event name",
			}
		}
		where := fmt.Sprintf("events[%d] (%s)", i, ev.Event)
		for _, window := range []interface{}{ev.Debounce, ev.Throttle} {
			if window == nil {
				continue
			}
			if _, err := expr.ParseDuration(window); err != nil {
				return &BadDocument{Where: where, Reason: err.Error()}
			}
		}
		acts, err := compileActions(where, ev.ActionSources)
		if err != nil {
			return err
		}
		ev.Actions = acts
	}

	for name, f := range d.Flows {
		where := fmt.Sprintf("flow %q", name)
		if err := storage.ValidIdent("flow", name); err != nil {
			return &BadDocument{Where: "flows", Reason: err.Error()}
		}
		if f == nil {
			return &BadDocument{Where: where, Reason: "no definition"}
		}
		params := make(map[string]bool, len(f.Params))
		for _, p := range f.Params {
			if p == nil || p.Name == "" {
				return &BadDocument{Where: where, Reason: "a param has no name"}
			}
			if err := storage.ValidIdent("param", p.Name); err != nil {
				return &BadDocument{Where: where, Reason: err.Error()}
			}
			if params[p.Name] {
				return &BadDocument{
					Where:  where,
					Reason: fmt.Sprintf("duplicate param %q", p.Name),
				}
			}
			params[p.Name] = true
		}
		acts, err := compileActions(where, f.ActionSources)
		if err != nil {
			return err
		}
		f.Actions = acts
	}

	scheduled := make(map[string]bool, len(d.Schedules))
	for i, s := range d.Schedules {
		if s == nil || s.Name == "" {
			return &BadDocument{
				Where:  fmt.Sprintf("schedules[%d]", i),
				Reason: "no name",
			}
		}
		where := fmt.Sprintf("schedule %q", s.Name)
		if err := storage.ValidIdent("schedule", s.Name); err != nil {
			return &BadDocument{Where: where, Reason: err.Error()}
		}
		if scheduled[s.Name] {
			return &BadDocument{Where: where, Reason: "duplicate name"}
		}
		scheduled[s.Name] = true
		if s.Cron == "" {
			return &BadDocument{Where: where, Reason: "no cron expression"}
		}
		if _, err := cronexpr.Parse(s.Cron); err != nil {
			return &BadDocument{Where: where, Reason: err.Error()}
		}
		acts, err := compileActions(where, s.ActionSources)
		if err != nil {
			return err
		}
		s.Actions = acts
	}

	// Variable and table shapes get their deep checks from the state
	// manager at registration; the loader only vets the names so a
	// typo is reported against the document.
	for name := range d.Variables {
		if err := storage.ValidIdent("variable", name); err != nil {
			return &BadDocument{Where: "variables", Reason: err.Error()}
		}
	}
	for name := range d.Tables {
		if err := storage.ValidIdent("table", name); err != nil {
			return &BadDocument{Where: "tables", Reason: err.Error()}
		}
	}

	d.compiled = true
	return nil
}

func (c *Command) compileOptions(where string) error {
	seen := make(map[string]bool, len(c.Options))
	for _, o := range c.Options {
		if o == nil || o.Name == "" {
			return &BadDocument{Where: where, Reason: "an option has no name"}
		}
		if err := storage.ValidIdent("option", o.Name); err != nil {
			return &BadDocument{Where: where, Reason: err.Error()}
		}
		if seen[o.Name] {
			return &BadDocument{
				Where:  where,
				Reason: fmt.Sprintf("duplicate option %q", o.Name),
			}
		}
		seen[o.Name] = true
		if o.Type == "" {
			o.Type = "string"
		}
		if !optionTypes[o.Type] {
			return &BadDocument{
				Where:  where,
				Reason: fmt.Sprintf("option %q has unknown type %q", o.Name, o.Type),
			}
		}
	}
	return nil
}

func compileActions(where string, src interface{}) ([]*core.Action, error) {
	acts, err := core.NormalizeActions(src)
	if err != nil {
		return nil, &BadDocument{Where: where, Reason: err.Error()}
	}
	if len(acts) == 0 {
		return nil, &BadDocument{Where: where, Reason: "no actions"}
	}
	return acts, nil
}

// Command finds a declared command by name.
func (d *Document) Command(name string) (*Command, bool) {
	for _, c := range d.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
