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

// Package expr evaluates ECMAScript expressions and "${...}" string
// templates against an environment of plain data.
//
// Expressions run in Goja, a Go implementation of ECMAScript 5.1+, so
// numbers behave like JavaScript numbers: one double type, x/0 is
// Infinity, and x%0 is NaN.  Each evaluation gets a fresh runtime and
// a deep copy of the environment, so code can't leave side effects
// behind.  Compiled programs are shared through an LRU cache, which is
// safe: a goja.Program is immutable, only runtimes aren't.
//
// See https://github.com/dop251/goja.
package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sync"
	"time"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// InterruptedMessage is the string value used to interrupt a
	// runaway evaluation.
	InterruptedMessage = "RuntimeError: timeout"

	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout = 5 * time.Second

	// DefaultCacheSize is the number of compiled programs kept.
	DefaultCacheSize = 1000

	// DefaultTemplateCacheSize is the number of parsed templates
	// kept.
	DefaultTemplateCacheSize = 500
)

// Options configures an Evaluator.  The zero value gets the defaults
// above.
type Options struct {
	// Timeout bounds each evaluation.  The interrupt timer is
	// always cleared when the evaluation returns.
	Timeout time.Duration

	// CacheSize and TemplateCacheSize bound the compiled-program
	// and parsed-template LRU caches.
	CacheSize         int
	TemplateCacheSize int

	// Strict makes a reference to an unknown variable an
	// UndefinedError.  Otherwise such a reference just evaluates
	// to nil, which is what templates usually want.
	Strict bool
}

// An Evaluator compiles and runs expressions.  Safe for concurrent
// use.
type Evaluator struct {
	opts Options

	programs  *lru.Cache[string, *goja.Program]
	templates *lru.Cache[string, []segment]

	sync.RWMutex
	funcs      map[string]interface{}
	transforms map[string]interface{}
}

// NewEvaluator makes an Evaluator with the built-in function and
// transform libraries installed.
func NewEvaluator(opts Options) (*Evaluator, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.TemplateCacheSize <= 0 {
		opts.TemplateCacheSize = DefaultTemplateCacheSize
	}

	programs, err := lru.New[string, *goja.Program](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	templates, err := lru.New[string, []segment](opts.TemplateCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		opts:       opts,
		programs:   programs,
		templates:  templates,
		funcs:      defaultFunctions(),
		transforms: defaultTransforms(),
	}
	return e, nil
}

// AddFunction installs (or replaces) a function available to every
// expression.
func (e *Evaluator) AddFunction(name string, fn interface{}) {
	e.Lock()
	e.funcs[name] = fn
	e.Unlock()
}

// AddTransform installs a transform usable in "expr | name" pipes.
// The compiled-program cache is purged since pipe rewriting depends
// on the transform set.
func (e *Evaluator) AddTransform(name string, fn interface{}) {
	e.Lock()
	e.transforms[name] = fn
	e.Unlock()
	e.programs.Purge()
}

func (e *Evaluator) hasTransform(name string) bool {
	e.RLock()
	_, have := e.transforms[name]
	e.RUnlock()
	return have
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(\n%s\n)", src)
}

// compile returns a cached program, compiling (and caching) on a
// miss.  The cache key is the original source; the sandbox check and
// pipe rewriting happen before goja sees anything.
func (e *Evaluator) compile(src string) (*goja.Program, error) {
	if p, have := e.programs.Get(src); have {
		return p, nil
	}

	if err := CheckSandbox(src); err != nil {
		return nil, err
	}

	code := e.rewritePipes(src)

	p, err := goja.Compile("", wrapSrc(code), true)
	if err != nil {
		return nil, &SyntaxError{Src: src, Err: err}
	}

	e.programs.Add(src, p)
	return p, nil
}

// Compile readies src for repeated evaluation.  The returned handle
// shares the evaluator's caches and function library.
func (e *Evaluator) Compile(src string) (*Compiled, error) {
	p, err := e.compile(src)
	if err != nil {
		return nil, err
	}
	return &Compiled{e: e, src: src, p: p}, nil
}

// A Compiled is a reusable compiled expression.
type Compiled struct {
	e   *Evaluator
	src string
	p   *goja.Program
}

// Eval runs the compiled expression against env.
func (c *Compiled) Eval(ctx context.Context, env map[string]interface{}) (interface{}, error) {
	return c.e.run(ctx, c.p, env)
}

// Evaluate compiles (or finds cached) src and runs it against env.
func (e *Evaluator) Evaluate(ctx context.Context, src string, env map[string]interface{}) (interface{}, error) {
	p, err := e.compile(src)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, p, env)
}

func (e *Evaluator) run(ctx context.Context, p *goja.Program, env map[string]interface{}) (interface{}, error) {
	// Expressions get a copy, so they can scribble on "their"
	// environment without anything upstream noticing.
	copied, err := canonicalize(env)
	if err != nil {
		return nil, err
	}
	envCopy, _ := copied.(map[string]interface{})

	o := goja.New()
	if _, err := o.RunProgram(prelude); err != nil {
		return nil, err
	}

	e.RLock()
	for name, fn := range e.funcs {
		o.Set(name, fn)
	}
	for name, fn := range e.transforms {
		o.Set(name, fn)
	}
	e.RUnlock()

	for name, v := range envCopy {
		o.Set(name, v)
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	go func() {
		<-ictx.Done()
		// If run calls cancel() after RunProgram returns, then
		// we'll never see this InterruptedMessage, which is
		// actually the behavior we want.  In that case, we
		// weren't actually interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := runProgram(o, p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TimeoutError{After: e.opts.Timeout}
		}
		if name, is := undefinedName(err); is {
			if e.opts.Strict {
				return nil, &UndefinedError{Name: name}
			}
			return nil, nil
		}
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	return normalize(v.Export()), nil
}

// runProgram keeps a host-function panic from taking the process
// down; it comes back as a plain error instead.
func runProgram(o *goja.Runtime, p *goja.Program) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, is := r.(error); is {
				err = e
				return
			}
			err = fmt.Errorf("%s", r)
		}
	}()
	return o.RunProgram(p)
}

var undefinedRe = regexp.MustCompile(`^ReferenceError: ([A-Za-z_$][A-Za-z0-9_$]*) is not defined`)

func undefinedName(err error) (string, bool) {
	m := undefinedRe.FindStringSubmatch(err.Error())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// normalize flattens goja's exported numbers to float64, in place for
// containers.  Everything downstream sees JavaScript's one number
// type.
func normalize(x interface{}) interface{} {
	switch v := x.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case []interface{}:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case map[string]interface{}:
		for k := range v {
			v[k] = normalize(v[k])
		}
		return v
	}
	return x
}

// canonicalize pushes x through JSON to get plain maps, slices, and
// float64s.  NaN and the infinities become nil first, the way
// JSON.stringify would have it.
func canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(definite(x))
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}

// definite replaces NaN and the infinities, which encoding/json
// refuses to marshal.
func definite(x interface{}) interface{} {
	switch v := x.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = definite(v[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k := range v {
			out[k] = definite(v[k])
		}
		return out
	}
	return x
}

