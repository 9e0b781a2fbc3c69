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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
)

// The built-in function library.  Everything here is pure (or at
// least side-effect free from the bot's point of view), takes loose
// arguments, and prefers returning something sensible over throwing.
// Functions that parse user-supplied patterns return errors, which
// goja raises as exceptions.
//
// Math.floor and friends come with the runtime; the globals below
// cover what ECMAScript 5.1 doesn't.

// maxRegexLen caps user-supplied patterns for matches().  Go regexps
// run in linear time, so the cap is about memory, not backtracking.
const maxRegexLen = 512

func defaultFunctions() map[string]interface{} {
	fns := map[string]interface{}{}
	add := func(m map[string]interface{}) {
		for name, fn := range m {
			fns[name] = fn
		}
	}
	add(stringFunctions())
	add(arrayFunctions())
	add(objectFunctions())
	add(mathFunctions())
	add(timeFunctions())
	add(formatFunctions())
	add(typeFunctions())
	return fns
}

func stringFunctions() map[string]interface{} {
	return map[string]interface{}{
		"upper": func(x interface{}) string {
			return strings.ToUpper(toStr(x))
		},
		"lower": func(x interface{}) string {
			return strings.ToLower(toStr(x))
		},
		"trim": func(x interface{}) string {
			return strings.TrimSpace(toStr(x))
		},
		"capitalize": func(x interface{}) string {
			s := toStr(x)
			if s == "" {
				return s
			}
			r := []rune(s)
			return strings.ToUpper(string(r[0])) + string(r[1:])
		},
		"padStart": func(x interface{}, n interface{}, pad ...interface{}) string {
			return padded(x, n, pad, true)
		},
		"padEnd": func(x interface{}, n interface{}, pad ...interface{}) string {
			return padded(x, n, pad, false)
		},
		"truncate": func(x interface{}, n interface{}, suffix ...interface{}) string {
			s, r := toStr(x), []rune(toStr(x))
			limit, ok := toInt(n)
			if !ok || len(r) <= limit {
				return s
			}
			tail := "…"
			if 0 < len(suffix) {
				tail = toStr(suffix[0])
			}
			keep := limit - len([]rune(tail))
			if keep < 0 {
				keep = 0
			}
			return string(r[:keep]) + tail
		},
		"replace": func(x, old, new interface{}) string {
			return strings.ReplaceAll(toStr(x), toStr(old), toStr(new))
		},
		"split": func(x, sep interface{}) []interface{} {
			parts := strings.Split(toStr(x), toStr(sep))
			out := make([]interface{}, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out
		},
		"startsWith": func(x, prefix interface{}) bool {
			return strings.HasPrefix(toStr(x), toStr(prefix))
		},
		"endsWith": func(x, suffix interface{}) bool {
			return strings.HasSuffix(toStr(x), toStr(suffix))
		},
		"includes": func(x, y interface{}) bool {
			if a, is := toSlice(x); is {
				for _, v := range a {
					if looseEq(v, exported(y)) {
						return true
					}
				}
				return false
			}
			return strings.Contains(toStr(x), toStr(y))
		},
		"substring": func(x interface{}, from interface{}, to ...interface{}) string {
			r := []rune(toStr(x))
			a, _ := toInt(from)
			b := len(r)
			if 0 < len(to) {
				if n, ok := toInt(to[0]); ok {
					b = n
				}
			}
			a, b = clampIndex(a, len(r)), clampIndex(b, len(r))
			if b < a {
				a, b = b, a
			}
			return string(r[a:b])
		},
		"repeat": func(x interface{}, n interface{}) string {
			c, ok := toInt(n)
			if !ok || c < 0 {
				return ""
			}
			if 10000 < c {
				c = 10000
			}
			return strings.Repeat(toStr(x), c)
		},
		"matches": func(x, pattern interface{}) (bool, error) {
			pat := toStr(pattern)
			if maxRegexLen < len(pat) {
				return false, fmt.Errorf("pattern longer than %d bytes", maxRegexLen)
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return false, err
			}
			return re.MatchString(toStr(x)), nil
		},
		"escapeMarkdown": func(x interface{}) string {
			var b strings.Builder
			for _, r := range toStr(x) {
				switch r {
				case '*', '_', '`', '~', '|', '\\', '>':
					b.WriteByte('\\')
				}
				b.WriteRune(r)
			}
			return b.String()
		},
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if n < i {
		return n
	}
	return i
}

func padded(x, n interface{}, pad []interface{}, front bool) string {
	s := toStr(x)
	limit, ok := toInt(n)
	if !ok {
		return s
	}
	fill := " "
	if 0 < len(pad) && toStr(pad[0]) != "" {
		fill = toStr(pad[0])
	}
	r := []rune(s)
	for len(r) < limit {
		need := limit - len(r)
		chunk := []rune(fill)
		if need < len(chunk) {
			chunk = chunk[:need]
		}
		if front {
			r = append(chunk, r...)
		} else {
			r = append(r, chunk...)
		}
	}
	return string(r)
}

func arrayFunctions() map[string]interface{} {
	return map[string]interface{}{
		"first": func(x interface{}) interface{} {
			if a, is := toSlice(x); is && 0 < len(a) {
				return a[0]
			}
			return nil
		},
		"last": func(x interface{}) interface{} {
			if a, is := toSlice(x); is && 0 < len(a) {
				return a[len(a)-1]
			}
			return nil
		},
		"at": func(x interface{}, i interface{}) interface{} {
			a, is := toSlice(x)
			n, ok := toInt(i)
			if !is || !ok {
				return nil
			}
			if n < 0 {
				n += len(a)
			}
			if n < 0 || len(a) <= n {
				return nil
			}
			return a[n]
		},
		"slice": func(x interface{}, from interface{}, to ...interface{}) []interface{} {
			a, is := toSlice(x)
			if !is {
				return []interface{}{}
			}
			start, _ := toInt(from)
			end := len(a)
			if 0 < len(to) {
				if n, ok := toInt(to[0]); ok {
					end = n
				}
			}
			if start < 0 {
				start += len(a)
			}
			if end < 0 {
				end += len(a)
			}
			if start < 0 {
				start = 0
			}
			if len(a) < end {
				end = len(a)
			}
			if end <= start {
				return []interface{}{}
			}
			out := make([]interface{}, end-start)
			copy(out, a[start:end])
			return out
		},
		"count": func(x interface{}) float64 {
			switch v := exported(x).(type) {
			case []interface{}:
				return float64(len(v))
			case map[string]interface{}:
				return float64(len(v))
			case string:
				return float64(len([]rune(v)))
			}
			return 0
		},
		"sum": func(x interface{}) float64 {
			a, _ := toSlice(x)
			total := 0.0
			for _, v := range a {
				if f, ok := toFloat(v); ok {
					total += f
				}
			}
			return total
		},
		"avg": func(x interface{}) float64 {
			a, _ := toSlice(x)
			if len(a) == 0 {
				return math.NaN()
			}
			total := 0.0
			for _, v := range a {
				if f, ok := toFloat(v); ok {
					total += f
				}
			}
			return total / float64(len(a))
		},
		"unique": func(x interface{}) []interface{} {
			a, _ := toSlice(x)
			seen := make(map[string]bool, len(a))
			out := make([]interface{}, 0, len(a))
			for _, v := range a {
				js, err := json.Marshal(definite(v))
				if err != nil {
					continue
				}
				if !seen[string(js)] {
					seen[string(js)] = true
					out = append(out, v)
				}
			}
			return out
		},
		"reverse": func(x interface{}) []interface{} {
			a, _ := toSlice(x)
			out := make([]interface{}, len(a))
			for i, v := range a {
				out[len(a)-1-i] = v
			}
			return out
		},
		"shuffle": func(x interface{}) []interface{} {
			a, _ := toSlice(x)
			out := make([]interface{}, len(a))
			copy(out, a)
			rand.Shuffle(len(out), func(i, j int) {
				out[i], out[j] = out[j], out[i]
			})
			return out
		},
		"sample": func(x interface{}) interface{} {
			a, is := toSlice(x)
			if !is || len(a) == 0 {
				return nil
			}
			return a[rand.Intn(len(a))]
		},
		"chunk": func(x interface{}, size interface{}) []interface{} {
			a, _ := toSlice(x)
			n, ok := toInt(size)
			if !ok || n < 1 {
				return []interface{}{}
			}
			out := make([]interface{}, 0, (len(a)+n-1)/n)
			for i := 0; i < len(a); i += n {
				end := i + n
				if len(a) < end {
					end = len(a)
				}
				out = append(out, a[i:end])
			}
			return out
		},
		"flatten": func(x interface{}) []interface{} {
			a, _ := toSlice(x)
			out := make([]interface{}, 0, len(a))
			for _, v := range a {
				if inner, is := toSlice(v); is {
					out = append(out, inner...)
					continue
				}
				out = append(out, v)
			}
			return out
		},
		"join": func(x interface{}, sep ...interface{}) string {
			a, _ := toSlice(x)
			s := ", "
			if 0 < len(sep) {
				s = toStr(sep[0])
			}
			parts := make([]string, len(a))
			for i, v := range a {
				parts[i] = jsString(v)
			}
			return strings.Join(parts, s)
		},
		"range": func(a interface{}, b ...interface{}) []interface{} {
			from, _ := toFloat(a)
			to := from
			if 0 < len(b) {
				to, _ = toFloat(b[0])
			} else {
				from = 0
			}
			if to < from {
				return []interface{}{}
			}
			if 100000 < to-from {
				to = from + 100000
			}
			out := make([]interface{}, 0, int(to-from))
			for i := from; i < to; i++ {
				out = append(out, i)
			}
			return out
		},
	}
}

func objectFunctions() map[string]interface{} {
	return map[string]interface{}{
		// Object.keys exists in ES5.1, but these come back sorted,
		// which templates want for stable output.
		"keys": func(x interface{}) []interface{} {
			m, _ := toMap(x)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make([]interface{}, len(keys))
			for i, k := range keys {
				out[i] = k
			}
			return out
		},
		"values": func(x interface{}) []interface{} {
			m, _ := toMap(x)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make([]interface{}, len(keys))
			for i, k := range keys {
				out[i] = m[k]
			}
			return out
		},
		"entries": func(x interface{}) []interface{} {
			m, _ := toMap(x)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make([]interface{}, len(keys))
			for i, k := range keys {
				out[i] = []interface{}{k, m[k]}
			}
			return out
		},
		"get": func(x interface{}, path interface{}, def ...interface{}) interface{} {
			v, found := walkPath(exported(x), toStr(path))
			if found {
				return v
			}
			if 0 < len(def) {
				return exported(def[0])
			}
			return nil
		},
		"has": func(x interface{}, path interface{}) bool {
			_, found := walkPath(exported(x), toStr(path))
			return found
		},
		"merge": func(xs ...interface{}) map[string]interface{} {
			out := map[string]interface{}{}
			for _, x := range xs {
				if m, is := toMap(x); is {
					for k, v := range m {
						out[k] = v
					}
				}
			}
			return out
		},
	}
}

// walkPath follows a dotted path through maps and slices.
func walkPath(x interface{}, path string) (interface{}, bool) {
	if path == "" {
		return x, true
	}
	cur := x
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, have := v[part]
			if !have {
				return nil, false
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || len(v) <= i {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func mathFunctions() map[string]interface{} {
	return map[string]interface{}{
		"round": func(x interface{}, places ...interface{}) float64 {
			f, ok := toFloat(x)
			if !ok {
				return math.NaN()
			}
			if 0 < len(places) {
				if p, ok := toInt(places[0]); ok && 0 < p {
					scale := math.Pow(10, float64(p))
					return math.Round(f*scale) / scale
				}
			}
			return math.Round(f)
		},
		"floor": func(x interface{}) float64 {
			f, ok := toFloat(x)
			if !ok {
				return math.NaN()
			}
			return math.Floor(f)
		},
		"ceil": func(x interface{}) float64 {
			f, ok := toFloat(x)
			if !ok {
				return math.NaN()
			}
			return math.Ceil(f)
		},
		"abs": func(x interface{}) float64 {
			f, ok := toFloat(x)
			if !ok {
				return math.NaN()
			}
			return math.Abs(f)
		},
		"clamp": func(x, lo, hi interface{}) float64 {
			f, _ := toFloat(x)
			a, _ := toFloat(lo)
			b, _ := toFloat(hi)
			return math.Min(math.Max(f, a), b)
		},
		"min": func(args ...interface{}) float64 {
			return foldNumeric(args, math.Min)
		},
		"max": func(args ...interface{}) float64 {
			return foldNumeric(args, math.Max)
		},
		"random": func(args ...interface{}) float64 {
			switch len(args) {
			case 0:
				return rand.Float64()
			case 1:
				hi, _ := toFloat(args[0])
				return rand.Float64() * hi
			}
			lo, _ := toFloat(args[0])
			hi, _ := toFloat(args[1])
			return lo + rand.Float64()*(hi-lo)
		},
		"randomInt": func(a, b interface{}) float64 {
			lo, _ := toInt(a)
			hi, _ := toInt(b)
			if hi < lo {
				lo, hi = hi, lo
			}
			return float64(lo + rand.Intn(hi-lo+1))
		},
		"toFixed": func(x interface{}, places interface{}) string {
			f, _ := toFloat(x)
			p, ok := toInt(places)
			if !ok || p < 0 {
				p = 0
			}
			return strconv.FormatFloat(f, 'f', p, 64)
		},
	}
}

// foldNumeric folds the numeric arguments with f.  A single array
// argument spreads first.  NaN when nothing numeric arrives.
func foldNumeric(args []interface{}, f func(float64, float64) float64) float64 {
	if len(args) == 1 {
		if a, is := toSlice(args[0]); is {
			args = a
		}
	}
	out, got := math.NaN(), false
	for _, x := range args {
		v, ok := toFloat(x)
		if !ok {
			continue
		}
		if !got {
			out, got = v, true
			continue
		}
		out = f(out, v)
	}
	return out
}

var durationUnits = []struct {
	name string
	ms   float64
}{
	{"w", 7 * 24 * 3600 * 1000},
	{"d", 24 * 3600 * 1000},
	{"h", 3600 * 1000},
	{"m", 60 * 1000},
	{"s", 1000},
	{"ms", 1},
}

// ParseDuration reads a duration field value: a number counts as
// milliseconds, a string parses as a compound duration ("1d2h30m").
func ParseDuration(x interface{}) (time.Duration, error) {
	if s, is := x.(string); is {
		ms, err := parseDurationMS(s)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	if f, ok := toFloat(x); ok {
		return time.Duration(f * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("bad duration %v (%T)", x, x)
}

var durationRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ms|[wdhms])`)

// parseDurationMS reads compound durations like "1d2h30m" into
// milliseconds.
func parseDurationMS(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	ms := 0.0
	matched := 0
	for _, m := range durationRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, err
		}
		for _, u := range durationUnits {
			if u.name == m[2] {
				ms += n * u.ms
				break
			}
		}
		matched += len(m[0])
	}
	if matched == 0 {
		// A bare number is milliseconds.
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("bad duration %q", s)
		}
		return n, nil
	}
	return ms, nil
}

func timeFunctions() map[string]interface{} {
	return map[string]interface{}{
		"now": func() float64 {
			return float64(time.Now().UnixMilli())
		},
		"timestamp": func(args ...interface{}) string {
			t := time.Now().UTC()
			layout := time.RFC3339
			if 0 < len(args) {
				if f, ok := toFloat(args[0]); ok {
					t = time.UnixMilli(int64(f)).UTC()
				} else if s, is := exported(args[0]).(string); is {
					layout = s
				}
			}
			if 1 < len(args) {
				if s, is := exported(args[1]).(string); is {
					layout = s
				}
			}
			return t.Format(layout)
		},
		"parseTime": func(x interface{}, layout ...interface{}) (float64, error) {
			s := toStr(x)
			l := time.RFC3339
			if 0 < len(layout) {
				l = toStr(layout[0])
			}
			t, err := time.Parse(l, s)
			if err != nil {
				if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
					return 0, err
				}
			}
			return float64(t.UnixMilli()), nil
		},
		"duration": func(x interface{}) (float64, error) {
			return parseDurationMS(toStr(x))
		},
		"dateAdd": func(x interface{}, d interface{}) (float64, error) {
			base, _ := toFloat(x)
			ms, err := parseDurationMS(toStr(d))
			if err != nil {
				return 0, err
			}
			return base + ms, nil
		},
		"dateSub": func(x interface{}, d interface{}) (float64, error) {
			base, _ := toFloat(x)
			ms, err := parseDurationMS(toStr(d))
			if err != nil {
				return 0, err
			}
			return base - ms, nil
		},
		"humanizeDuration": func(x interface{}) string {
			ms, ok := toFloat(x)
			if !ok {
				return ""
			}
			if ms < 0 {
				ms = -ms
			}
			secs := int64(ms / 1000)
			parts := []string{}
			for _, u := range []struct {
				name string
				secs int64
			}{
				{"day", 86400},
				{"hour", 3600},
				{"minute", 60},
				{"second", 1},
			} {
				n := secs / u.secs
				secs %= u.secs
				if n == 0 {
					continue
				}
				label := u.name
				if 1 < n {
					label += "s"
				}
				parts = append(parts, fmt.Sprintf("%d %s", n, label))
			}
			if len(parts) == 0 {
				return "0 seconds"
			}
			return strings.Join(parts, " ")
		},
		// cronNext parses the given string as a crontab expression
		// using github.com/gorhill/cronexpr.  Returns the next time
		// as a string formatted in time.RFC3339Nano (UTC).
		"cronNext": func(x interface{}) (string, error) {
			c, err := cronexpr.Parse(toStr(x))
			if err != nil {
				return "", err
			}
			return c.Next(time.Now()).UTC().Format(time.RFC3339Nano), nil
		},
	}
}

func formatFunctions() map[string]interface{} {
	return map[string]interface{}{
		"ordinal": func(x interface{}) string {
			n, ok := toInt(x)
			if !ok {
				return toStr(x)
			}
			suffix := "th"
			switch {
			case n%100 >= 11 && n%100 <= 13:
			case n%10 == 1:
				suffix = "st"
			case n%10 == 2:
				suffix = "nd"
			case n%10 == 3:
				suffix = "rd"
			}
			return strconv.Itoa(n) + suffix
		},
		"pluralize": func(n interface{}, singular interface{}, plural ...interface{}) string {
			f, _ := toFloat(n)
			if f == 1 {
				return toStr(singular)
			}
			if 0 < len(plural) {
				return toStr(plural[0])
			}
			return toStr(singular) + "s"
		},
		"mention": func(x interface{}) string {
			return "<@" + toStr(x) + ">"
		},
		"channelMention": func(x interface{}) string {
			return "<#" + toStr(x) + ">"
		},
		"roleMention": func(x interface{}) string {
			return "<@&" + toStr(x) + ">"
		},
		// esc URL query-escapes the given string.
		"esc": func(x interface{}) string {
			return url.QueryEscape(toStr(x))
		},
		"hash": func(x interface{}) string {
			sum := sha256.Sum256([]byte(toStr(x)))
			return hex.EncodeToString(sum[:])
		},
		"uuid": func() string {
			return uuid.NewString()
		},
	}
}

func typeFunctions() map[string]interface{} {
	return map[string]interface{}{
		"typeOf": func(x interface{}) string {
			switch exported(x).(type) {
			case nil:
				return "null"
			case bool:
				return "boolean"
			case string:
				return "string"
			case []interface{}:
				return "array"
			case map[string]interface{}:
				return "object"
			}
			if _, ok := toFloat(x); ok {
				return "number"
			}
			return "unknown"
		},
		"isNumber": func(x interface{}) bool {
			_, ok := toFloat(x)
			return ok
		},
		"isString": func(x interface{}) bool {
			_, is := exported(x).(string)
			return is
		},
		"isArray": func(x interface{}) bool {
			_, is := toSlice(x)
			return is
		},
		"isObject": func(x interface{}) bool {
			_, is := toMap(x)
			return is
		},
		"toNumber": func(x interface{}) float64 {
			if f, ok := toFloat(x); ok {
				return f
			}
			if s, is := exported(x).(string); is {
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					return f
				}
			}
			if b, is := exported(x).(bool); is {
				if b {
					return 1
				}
				return 0
			}
			return math.NaN()
		},
		"toString": func(x interface{}) string {
			return toStr(x)
		},
		"toJSON": func(x interface{}) (string, error) {
			js, err := json.Marshal(definite(exported(x)))
			if err != nil {
				return "", err
			}
			return string(js), nil
		},
		"parseJSON": func(x interface{}) (interface{}, error) {
			var v interface{}
			if err := json.Unmarshal([]byte(toStr(x)), &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		"defaultTo": func(x interface{}, def interface{}) interface{} {
			v := exported(x)
			if v == nil {
				return exported(def)
			}
			return v
		},
		"coalesce": func(xs ...interface{}) interface{} {
			for _, x := range xs {
				if v := exported(x); v != nil {
					return v
				}
			}
			return nil
		},
	}
}
