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

// An Action is one declarative step, immutable once loaded.  Many
// actions share a kind; the kind's Handler interprets Fields.
type Action struct {
	// Kind names the registered handler ("reply", "set_state",
	// "call_flow", ...).
	Kind string `json:"action" yaml:"action"`

	// When optionally gates execution: an expression string or a
	// structured condition (see EvalCondition).
	When interface{} `json:"when,omitempty" yaml:"when,omitempty"`

	// ErrorHandler optionally names a flow to run when this action
	// fails.  A handled failure doesn't stop a sequence.
	ErrorHandler string `json:"error_handler,omitempty" yaml:"error_handler,omitempty"`

	// Fields carries the kind-specific configuration.
	Fields map[string]interface{} `json:"-" yaml:"-"`
}

// Field returns a kind-specific field.
func (a *Action) Field(name string) (interface{}, bool) {
	v, have := a.Fields[name]
	return v, have
}

// StringField returns a field's string value, or "" when the field is
// absent or not a string.
func (a *Action) StringField(name string) string {
	if s, is := a.Fields[name].(string); is {
		return s
	}
	return ""
}

// reserved keys of the canonical action shape.
func reservedActionKey(k string) bool {
	return k == "action" || k == "when" || k == "error_handler"
}

// NormalizeAction turns a raw document map into an Action.
//
// The canonical shape is {action: <kind>, when?, error_handler?,
// ...fields}.  The shorthand shape {<kind>: {...fields}} has exactly
// one key that isn't "when" or "error_handler"; two such keys is an
// error rather than a guess about which one the author meant.
func NormalizeAction(x interface{}) (*Action, error) {
	m, is := x.(map[string]interface{})
	if !is {
		return nil, &BadAction{Reason: "not a map"}
	}

	a := &Action{Fields: make(map[string]interface{}, len(m))}
	if w, have := m["when"]; have {
		a.When = w
	}
	if eh, have := m["error_handler"]; have {
		s, is := eh.(string)
		if !is {
			return nil, &BadAction{Reason: `"error_handler" is not a flow name`}
		}
		a.ErrorHandler = s
	}

	if kind, have := m["action"]; have {
		s, is := kind.(string)
		if !is || s == "" {
			return nil, &BadAction{Reason: `"action" is not a kind name`}
		}
		a.Kind = s
		for k, v := range m {
			if !reservedActionKey(k) {
				a.Fields[k] = v
			}
		}
		return a, nil
	}

	// Shorthand.
	for k, v := range m {
		if reservedActionKey(k) {
			continue
		}
		if a.Kind != "" {
			return nil, &BadAction{
				Reason: `both "` + a.Kind + `" and "` + k + `" look like kinds`,
			}
		}
		a.Kind = k
		switch fields := v.(type) {
		case nil:
		case map[string]interface{}:
			for fk, fv := range fields {
				a.Fields[fk] = fv
			}
		default:
			return nil, &BadAction{Reason: `shorthand "` + k + `" value is not a map`}
		}
	}
	if a.Kind == "" {
		return nil, &BadAction{Reason: "no kind"}
	}
	return a, nil
}

// NormalizeActions turns a raw document value into an action list.  A
// single map counts as a list of one; nil is empty.
func NormalizeActions(x interface{}) ([]*Action, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		acc := make([]*Action, 0, len(v))
		for _, y := range v {
			a, err := NormalizeAction(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, a)
		}
		return acc, nil
	case map[string]interface{}:
		a, err := NormalizeAction(v)
		if err != nil {
			return nil, err
		}
		return []*Action{a}, nil
	case []*Action:
		return v, nil
	}
	return nil, &BadAction{Reason: "not an action list"}
}
