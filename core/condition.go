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
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strings"

	"github.com/Comcast/rigging/expr"
)

// Warnf reports fail-closed condition diagnostics.  Tests can swap it
// out.
var Warnf = func(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// maxPatternLen caps "match" condition regexes.
const maxPatternLen = 512

// EvalCondition evaluates a condition value against env.
//
// A condition is an expression string, a bool, or a map with exactly
// one of these keys:
//
//	expr:  expression string
//	all:   condition list (AND, empty is true)
//	any:   condition list (OR, empty is false)
//	not:   condition
//	eq, ne, gt, gte, lt, lte: [expression, literal-or-template]
//	in:    [expression, array-expression]
//	match: [expression, regex-literal]
//
// Operands evaluate lazily and independently.  A comparison's left
// side is an expression; its right side is a literal, where a string
// stays a string unless it uses "${...}" spans.  Shapes this function
// doesn't recognize evaluate to false with a diagnostic, never to a
// guess.  Condition strings wrapped in "${...}" are a *ConditionError:
// that syntax belongs in templates, and evaluating it here would
// silently test the wrong thing.
func EvalCondition(ctx context.Context, cond interface{}, env map[string]interface{}, deps *Deps) (bool, error) {
	switch c := cond.(type) {
	case bool:
		return c, nil
	case string:
		if expr.HasExpressions(c) {
			return false, &ConditionError{
				Cond:   c,
				Reason: `conditions are already expressions; drop the "${...}" wrapper`,
			}
		}
		v, err := deps.Evaluator.Evaluate(ctx, c, env)
		if err != nil {
			return false, err
		}
		return Truthy(v), nil
	case map[string]interface{}:
		if len(c) != 1 {
			Warnf("condition %v has %d keys, wanted 1; evaluating false", c, len(c))
			return false, nil
		}
		for op, arg := range c {
			return evalConditionOp(ctx, op, arg, env, deps)
		}
	}
	Warnf("unrecognized condition %v; evaluating false", cond)
	return false, nil
}

func evalConditionOp(ctx context.Context, op string, arg interface{}, env map[string]interface{}, deps *Deps) (bool, error) {
	switch op {
	case "expr":
		s, is := arg.(string)
		if !is {
			Warnf(`condition "expr" value %v is not a string; evaluating false`, arg)
			return false, nil
		}
		return EvalCondition(ctx, s, env, deps)

	case "all":
		cs, is := arg.([]interface{})
		if !is {
			Warnf(`condition "all" value is not a list; evaluating false`)
			return false, nil
		}
		for _, c := range cs {
			ok, err := EvalCondition(ctx, c, env, deps)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case "any":
		cs, is := arg.([]interface{})
		if !is {
			Warnf(`condition "any" value is not a list; evaluating false`)
			return false, nil
		}
		for _, c := range cs {
			ok, err := EvalCondition(ctx, c, env, deps)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case "not":
		ok, err := EvalCondition(ctx, arg, env, deps)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case "eq", "ne", "gt", "gte", "lt", "lte":
		pair, err := operandPair(op, arg)
		if err != nil {
			return false, err
		}
		left, err := exprOperand(ctx, pair[0], env, deps)
		if err != nil {
			return false, err
		}
		right, err := valueOperand(ctx, pair[1], env, deps)
		if err != nil {
			return false, err
		}
		return compare(op, left, right), nil

	case "in":
		pair, err := operandPair(op, arg)
		if err != nil {
			return false, err
		}
		needle, err := exprOperand(ctx, pair[0], env, deps)
		if err != nil {
			return false, err
		}
		hay, err := exprOperand(ctx, pair[1], env, deps)
		if err != nil {
			return false, err
		}
		switch h := hay.(type) {
		case []interface{}:
			for _, v := range h {
				if condEq(needle, v) {
					return true, nil
				}
			}
			return false, nil
		case string:
			if s, is := needle.(string); is {
				return strings.Contains(h, s), nil
			}
		}
		Warnf(`condition "in" right side %v is not an array or string; evaluating false`, hay)
		return false, nil

	case "match":
		pair, is := arg.([]interface{})
		if !is || len(pair) != 2 {
			Warnf(`condition "match" wants [expression, regex]; evaluating false`)
			return false, nil
		}
		pattern, is := pair[1].(string)
		if !is {
			Warnf(`condition "match" regex %v is not a string; evaluating false`, pair[1])
			return false, nil
		}
		if maxPatternLen < len(pattern) {
			Warnf(`condition "match" regex is %d bytes (max %d); evaluating false`,
				len(pattern), maxPatternLen)
			return false, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			Warnf(`condition "match" regex %q: %v; evaluating false`, pattern, err)
			return false, nil
		}
		v, err := exprOperand(ctx, pair[0], env, deps)
		if err != nil {
			return false, err
		}
		s, is := v.(string)
		if !is {
			s = fmt.Sprintf("%v", v)
		}
		return re.MatchString(s), nil
	}

	Warnf("unrecognized condition operator %q; evaluating false", op)
	return false, nil
}

func operandPair(op string, arg interface{}) ([]interface{}, error) {
	pair, is := arg.([]interface{})
	if !is || len(pair) != 2 {
		return nil, &ConditionError{
			Cond:   fmt.Sprintf("%v", arg),
			Reason: `"` + op + `" wants a two-element list`,
		}
	}
	return pair, nil
}

// exprOperand treats strings as expressions and anything else as a
// literal.
func exprOperand(ctx context.Context, x interface{}, env map[string]interface{}, deps *Deps) (interface{}, error) {
	s, is := x.(string)
	if !is {
		return x, nil
	}
	if expr.HasExpressions(s) {
		return nil, &ConditionError{
			Cond:   s,
			Reason: `operands are already expressions; drop the "${...}" wrapper`,
		}
	}
	return deps.Evaluator.Evaluate(ctx, s, env)
}

// valueOperand keeps strings literal unless they carry template spans.
// {eq: [user.name, "homer"]} compares against the word, not against a
// variable that happens to be named homer.
func valueOperand(ctx context.Context, x interface{}, env map[string]interface{}, deps *Deps) (interface{}, error) {
	s, is := x.(string)
	if !is {
		return x, nil
	}
	return deps.Evaluator.EvaluateTemplate(ctx, s, env)
}

// Truthy follows the expression language's notion of truth: nil,
// false, 0, NaN, and "" are false; everything else is true.
func Truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && x == x
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return true
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// condEq is loose equality in the evaluator's value domain: numbers
// compare numerically regardless of Go type, containers deeply.
func condEq(a, b interface{}) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func compare(op string, a, b interface{}) bool {
	switch op {
	case "eq":
		return condEq(a, b)
	case "ne":
		return !condEq(a, b)
	}

	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return false
		}
		switch op {
		case "gt":
			return fb < fa
		case "gte":
			return fb <= fa
		case "lt":
			return fa < fb
		case "lte":
			return fa <= fb
		}
		return false
	}

	sa, isA := a.(string)
	sb, isB := b.(string)
	if !isA || !isB {
		Warnf("condition %q can't compare %T with %T; evaluating false", op, a, b)
		return false
	}
	switch op {
	case "gt":
		return sb < sa
	case "gte":
		return sb <= sa
	case "lt":
		return sa < sb
	case "lte":
		return sa <= sb
	}
	return false
}
