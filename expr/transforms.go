package expr

import (
	"regexp"
	"strings"
)

// Templates can pipe a value through named transforms:
//
//	${user.username | upper | truncate(8)}
//
// A pipe is sugar for a call, so the line above compiles as
// truncate(upper(user.username), 8).  The rewrite only fires when
// every pipe stage names a registered transform; otherwise the source
// is left alone and '|' keeps its usual bitwise meaning.

var stageRe = regexp.MustCompile(`^([A-Za-z_$][A-Za-z0-9_$]*)\s*(?:\(([\s\S]*)\))?$`)

// splitPipes splits src on top-level single '|' characters, ignoring
// '||', '|=', and anything inside strings or brackets.
func splitPipes(src string) []string {
	var (
		parts []string
		quote byte
		depth int
		start int
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '|':
			if depth != 0 {
				continue
			}
			if i+1 < len(src) && (src[i+1] == '|' || src[i+1] == '=') {
				i++
				continue
			}
			parts = append(parts, src[start:i])
			start = i + 1
		}
	}
	return append(parts, src[start:])
}

func (e *Evaluator) rewritePipes(src string) string {
	parts := splitPipes(src)
	if len(parts) < 2 {
		return src
	}

	out := strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		m := stageRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil || !e.hasTransform(m[1]) {
			// Not a transform chain after all.
			return src
		}
		// Aliases have to resolve here: "default" is a
		// reserved word, so it can't appear in the rewritten
		// source as a function name.
		name := m[1]
		if target, have := transformAliases[name]; have {
			name = target
		}
		args := strings.TrimSpace(m[2])
		if args == "" {
			out = name + "(" + out + ")"
		} else {
			out = name + "(" + out + ", " + args + ")"
		}
	}
	return out
}

// Transform names that are sugar for differently named functions.
var transformAliases = map[string]string{
	"json":    "toJSON",
	"number":  "toNumber",
	"string":  "toString",
	"default": "defaultTo",
}

var transformNames = []string{
	"upper", "lower", "trim", "capitalize", "truncate",
	"padStart", "padEnd", "escapeMarkdown",
	"round", "floor", "ceil", "abs",
	"first", "last", "unique", "reverse", "join", "sum", "count",
	"ordinal", "pluralize", "humanizeDuration",
}

func defaultTransforms() map[string]interface{} {
	fns := defaultFunctions()
	out := make(map[string]interface{}, len(transformNames)+len(transformAliases))
	for _, name := range transformNames {
		if fn, have := fns[name]; have {
			out[name] = fn
		}
	}
	for name, target := range transformAliases {
		if fn, have := fns[target]; have {
			out[name] = fn
		}
	}
	return out
}
