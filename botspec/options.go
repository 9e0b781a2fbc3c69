package botspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Comcast/rigging/storage"
)

// BadOption rejects a command invocation's arguments.
type BadOption struct {
	Command string
	Option  string
	Reason  string
}

func (e *BadOption) Error() string {
	return fmt.Sprintf("command %q option %q: %s", e.Command, e.Option, e.Reason)
}

// DecodeOptions checks raw argument values against the command's
// declared options: types coerce, defaults fill, required ones must be
// present, choices restrict, undeclared names are rejected.
func (c *Command) DecodeOptions(raw map[string]interface{}) (map[string]interface{}, error) {
	declared := make(map[string]*Option, len(c.Options))
	for _, o := range c.Options {
		declared[o.Name] = o
	}
	for name := range raw {
		if _, have := declared[name]; !have {
			return nil, &BadOption{Command: c.Name, Option: name, Reason: "not declared"}
		}
	}

	decoded := make(map[string]interface{}, len(c.Options))
	for _, o := range c.Options {
		v, have := raw[o.Name]
		if !have || v == nil {
			if o.Required {
				return nil, &BadOption{Command: c.Name, Option: o.Name, Reason: "required"}
			}
			if o.Default != nil {
				decoded[o.Name] = o.Default
			}
			continue
		}
		coerced, err := coerceOption(o.Type, v)
		if err != nil {
			return nil, &BadOption{Command: c.Name, Option: o.Name, Reason: err.Error()}
		}
		if 0 < len(o.Choices) && !chosen(o.Choices, coerced) {
			return nil, &BadOption{
				Command: c.Name,
				Option:  o.Name,
				Reason:  fmt.Sprintf("%v is not one of the choices", coerced),
			}
		}
		decoded[o.Name] = coerced
	}
	return decoded, nil
}

// ParseArgs maps whitespace-split words onto the declared options in
// order.  The last option swallows the remaining words, so a trailing
// free-text argument ("reason") just works.
func (c *Command) ParseArgs(words []string) (map[string]interface{}, error) {
	raw := make(map[string]interface{}, len(c.Options))
	for i, o := range c.Options {
		if len(words) <= i {
			break
		}
		if i == len(c.Options)-1 {
			raw[o.Name] = strings.Join(words[i:], " ")
		} else {
			raw[o.Name] = words[i]
		}
	}
	return c.DecodeOptions(raw)
}

func coerceOption(typ string, v interface{}) (interface{}, error) {
	switch typ {
	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("%v is not a number", v)
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			t, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return t, nil
		}
		return nil, fmt.Errorf("%v is not a boolean", v)
	default:
		// string, user, channel, role: all carried as strings.
		if s, is := v.(string); is {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
}

func chosen(choices []interface{}, v interface{}) bool {
	for _, c := range choices {
		if storage.Eq(c, v) {
			return true
		}
	}
	return false
}
