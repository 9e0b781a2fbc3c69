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

package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A segment is one run of a parsed template: either literal text or
// the source of a "${...}" span.
type segment struct {
	text   string
	isExpr bool
}

// scanSpan finds the end of a span opened at start (the index just
// past "${").  Braces nest, and braces inside string literals don't
// count.
func scanSpan(tmpl string, start int) (int, bool) {
	depth := 1
	var quote byte
	for i := start; i < len(tmpl); i++ {
		c := tmpl[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parseTemplate(tmpl string) []segment {
	segs := make([]segment, 0, 4)
	i := 0
	for i < len(tmpl) {
		j := strings.Index(tmpl[i:], "${")
		if j < 0 {
			segs = append(segs, segment{text: tmpl[i:]})
			break
		}
		if 0 < j {
			segs = append(segs, segment{text: tmpl[i : i+j]})
		}
		end, ok := scanSpan(tmpl, i+j+2)
		if !ok {
			// An unterminated span stays literal.
			segs = append(segs, segment{text: tmpl[i+j:]})
			break
		}
		segs = append(segs, segment{text: tmpl[i+j+2 : end], isExpr: true})
		i = end + 1
	}
	return segs
}

func (e *Evaluator) parsed(tmpl string) []segment {
	if segs, have := e.templates.Get(tmpl); have {
		return segs
	}
	segs := parseTemplate(tmpl)
	e.templates.Add(tmpl, segs)
	return segs
}

// HasExpressions reports whether s contains at least one complete
// "${...}" span.
func HasExpressions(s string) bool {
	i := strings.Index(s, "${")
	if i < 0 {
		return false
	}
	_, ok := scanSpan(s, i+2)
	return ok
}

// Interpolate renders a "${...}" template to a string.  Span values
// render the way JavaScript string conversion would have them, except
// that nil renders as "" rather than "null".
func (e *Evaluator) Interpolate(ctx context.Context, tmpl string, env map[string]interface{}) (string, error) {
	if !strings.Contains(tmpl, "${") {
		return tmpl, nil
	}
	return e.render(ctx, e.parsed(tmpl), env)
}

func (e *Evaluator) render(ctx context.Context, segs []segment, env map[string]interface{}) (string, error) {
	var b strings.Builder
	for _, s := range segs {
		if !s.isExpr {
			b.WriteString(s.text)
			continue
		}
		v, err := e.Evaluate(ctx, s.text, env)
		if err != nil {
			return "", err
		}
		b.WriteString(jsString(v))
	}
	return b.String(), nil
}

// EvaluateTemplate resolves templates in x, walking maps and slices.
// A string that is exactly one span comes back as the span's value,
// whatever its type; any other string with spans interpolates to a
// string; everything else passes through.
func (e *Evaluator) EvaluateTemplate(ctx context.Context, x interface{}, env map[string]interface{}) (interface{}, error) {
	switch v := x.(type) {
	case string:
		if !strings.Contains(v, "${") {
			return v, nil
		}
		segs := e.parsed(v)
		if len(segs) == 1 && segs[0].isExpr {
			return e.Evaluate(ctx, segs[0].text, env)
		}
		return e.render(ctx, segs, env)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, vv := range v {
			y, err := e.EvaluateTemplate(ctx, vv, env)
			if err != nil {
				return nil, err
			}
			out[k] = y
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, vv := range v {
			y, err := e.EvaluateTemplate(ctx, vv, env)
			if err != nil {
				return nil, err
			}
			out[i] = y
		}
		return out, nil
	}
	return x, nil
}

func jsNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// jsString renders a value for template output.
func jsString(x interface{}) string {
	switch v := x.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return jsNumber(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []interface{}, map[string]interface{}:
		js, err := json.Marshal(definite(v))
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(js)
	}
	return fmt.Sprintf("%v", x)
}
