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

// Package actions provides the standard action kinds: platform writes
// (reply, ban, ...), state and table operations, HTTP requests, and a
// couple of small utilities.
//
// Every config field goes through the template engine before use, so
// "channel: ${message.channelId}" and a literal id read the same way.
// Fields that name the trigger's own channel, message, user, or guild
// can usually be omitted; the handler falls back to the context.
package actions

import (
	"context"
	"fmt"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/state"
)

// Install registers every standard action kind with reg.  An
// application overrides one by re-registering its name.
func Install(reg *core.Registry) error {
	installPlatform(reg)
	installState(reg)
	installTables(reg)
	installMisc(reg)
	return installHTTP(reg)
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

// field runs one config field through the template engine.  Absent
// fields give nil.
func field(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, name string) (interface{}, error) {
	raw, have := a.Field(name)
	if !have || raw == nil {
		return nil, nil
	}
	return deps.Evaluator.EvaluateTemplate(ctx, raw, actx.Env())
}

// stringField is field rendered to a string; absent gives "".
func stringField(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, name string) (string, error) {
	v, err := field(ctx, a, actx, deps, name)
	if err != nil || v == nil {
		return "", err
	}
	if s, is := v.(string); is {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}

// needString is stringField for required fields.
func needString(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, name string) (string, error) {
	s, err := stringField(ctx, a, actx, deps, name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%s needs %q", a.Kind, name)
	}
	return s, nil
}

// mapField is field for object-shaped config.
func mapField(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, name string) (map[string]interface{}, error) {
	v, err := field(ctx, a, actx, deps, name)
	if err != nil || v == nil {
		return nil, err
	}
	m, is := v.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf("%s %q is %T, not a map", a.Kind, name, v)
	}
	return m, nil
}

func intField(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, name string) (int, bool, error) {
	v, err := field(ctx, a, actx, deps, name)
	if err != nil || v == nil {
		return 0, false, err
	}
	switch x := v.(type) {
	case int:
		return x, true, nil
	case int64:
		return int(x), true, nil
	case float64:
		return int(x), true, nil
	}
	return 0, false, fmt.Errorf("%s %q is %T, not a number", a.Kind, name, v)
}

func needClient(deps *core.Deps) (platform.Client, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("no platform client")
	}
	return deps.Client, nil
}

func needState(deps *core.Deps) (*state.Manager, error) {
	if deps.State == nil {
		return nil, fmt.Errorf("no state manager")
	}
	return deps.State, nil
}
