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
	"math"
	"testing"
	"time"
)

func testEvaluator(t testing.TB, opts Options) *Evaluator {
	e, err := NewEvaluator(opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEvaluateSimple(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	env := map[string]interface{}{
		"user": map[string]interface{}{
			"username": "homer",
		},
	}

	v, err := e.Evaluate(ctx, `user.username + " likes tacos"`, env)
	if err != nil {
		t.Fatal(err)
	}
	if v != "homer likes tacos" {
		t.Fatalf("got %#v", v)
	}
}

func TestEvaluateNumbers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	check := func(src string, want float64) {
		v, err := e.Evaluate(ctx, src, nil)
		if err != nil {
			t.Fatal(err)
		}
		f, is := v.(float64)
		if !is {
			t.Fatalf("%s gave %#v (%T), not a float64", src, v, v)
		}
		if f != want && !(math.IsNaN(f) && math.IsNaN(want)) {
			t.Fatalf("%s gave %v, wanted %v", src, f, want)
		}
	}

	// One number type, like the language says.
	check(`1 + 2`, 3)
	check(`7 / 2`, 3.5)
	check(`1 / 0`, math.Inf(1))
	check(`-1 / 0`, math.Inf(-1))
	check(`5 % 0`, math.NaN())
	check(`0.1 + 0.2`, 0.30000000000000004)
}

func TestEvaluateObjectLiteral(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	// An expression, so braces mean an object, not a block.
	v, err := e.Evaluate(ctx, `{likes: "chips", n: 2}`, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, is := v.(map[string]interface{})
	if !is {
		t.Fatalf("got %#v (%T)", v, v)
	}
	if m["likes"] != "chips" {
		t.Fatalf("got %#v", m)
	}
	if n, is := m["n"].(float64); !is || n != 2 {
		t.Fatalf("n came back as %#v", m["n"])
	}
}

func TestEvaluateUndefined(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	{
		e := testEvaluator(t, Options{})
		v, err := e.Evaluate(ctx, `nachos`, nil)
		if err != nil {
			t.Fatal(err)
		}
		if v != nil {
			t.Fatalf("got %#v", v)
		}
	}

	{
		e := testEvaluator(t, Options{Strict: true})
		_, err := e.Evaluate(ctx, `nachos`, nil)
		if err == nil {
			t.Fatal("didn't protest")
		}
		ue, is := err.(*UndefinedError)
		if !is {
			t.Fatalf("wrong error type %T: %v", err, err)
		}
		if ue.Name != "nachos" {
			t.Fatalf("blamed %q", ue.Name)
		}
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	_, err := e.Evaluate(ctx, `1 +`, nil)
	if err == nil {
		t.Fatal("didn't protest")
	}
	if _, is := err.(*SyntaxError); !is {
		t.Fatalf("wrong error type %T: %v", err, err)
	}
}

func TestEvaluateTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{Timeout: 50 * time.Millisecond})

	_, err := e.Evaluate(ctx, `(function() { for (;;) {} })()`, nil)
	if err == nil {
		t.Fatal("didn't timeout")
	}
	if _, is := err.(*TimeoutError); !is {
		t.Fatalf("wrong error type %T: %v", err, err)
	}
}

func TestEvaluateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := testEvaluator(t, Options{})

	_, err := e.Evaluate(ctx, `(function() { for (;;) {} })()`, nil)
	if err != context.Canceled {
		t.Fatalf("wanted context.Canceled, got %v", err)
	}
}

func TestEvaluateNoSideEffects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	env := map[string]interface{}{
		"likes": map[string]interface{}{
			"weekdays": "tacos",
			"weekends": "chips",
		},
	}

	if _, err := e.Evaluate(ctx, `likes.weekends = "queso"`, env); err != nil {
		t.Fatal(err)
	}

	// The expression scribbled on a copy.
	m := env["likes"].(map[string]interface{})
	if m["weekends"] != "chips" {
		t.Fatalf("side effect escaped: %#v", env)
	}
}

func TestEvaluateEnvIsolation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	// Two evaluations of the same source against different
	// environments, through the shared program cache.
	for _, who := range []string{"homer", "bart"} {
		env := map[string]interface{}{"who": who}
		v, err := e.Evaluate(ctx, `who`, env)
		if err != nil {
			t.Fatal(err)
		}
		if v != who {
			t.Fatalf("got %#v, wanted %q", v, who)
		}
	}
}

func TestCompiledReuse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	c, err := e.Compile(`n * 2`)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		v, err := c.Eval(ctx, map[string]interface{}{"n": i})
		if err != nil {
			t.Fatal(err)
		}
		if v.(float64) != float64(i*2) {
			t.Fatalf("got %#v for n=%d", v, i)
		}
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			for j := 0; j < 50; j++ {
				v, err := e.Evaluate(ctx, `n + 1`, map[string]interface{}{"n": n})
				if err == nil && v.(float64) != float64(n+1) {
					err = &SyntaxError{} // any error will do
				}
				if err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}

func BenchmarkEvaluateCached(b *testing.B) {
	ctx := context.Background()
	e := testEvaluator(b, Options{})
	env := map[string]interface{}{"n": 21}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Evaluate(ctx, `n * 2`, env); err != nil {
			b.Fatal(err)
		}
	}
}
