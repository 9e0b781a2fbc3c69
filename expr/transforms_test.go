package expr

import (
	"context"
	"strings"
	"testing"
)

func TestSplitPipes(t *testing.T) {
	check := func(src string, n int) {
		t.Helper()
		if parts := splitPipes(src); len(parts) != n {
			t.Fatalf("splitPipes(%q) = %#v", src, parts)
		}
	}

	check(`a | b | c`, 3)
	check(`a || b`, 1)
	check(`x |= 2`, 1)
	check(`"a|b" | upper`, 2)
	check(`f(a | b) | g`, 2)
	check(`plain`, 1)
}

func TestRewritePipes(t *testing.T) {
	e := testEvaluator(t, Options{})

	check := func(src, want string) {
		t.Helper()
		if got := e.rewritePipes(src); got != want {
			t.Fatalf("rewritePipes(%q) = %q, wanted %q", src, got, want)
		}
	}

	check(`user.name | upper | truncate(8)`, `truncate(upper(user.name), 8)`)
	check(`items | join(" | ")`, `join(items, " | ")`)
	check(`count(items) | ordinal`, `ordinal(count(items))`)

	// "default" is a reserved word, so its alias resolves.
	check(`x | default("f")`, `defaultTo(x, "f")`)

	// Any stage that isn't a registered transform leaves the
	// source alone: '|' keeps its bitwise meaning.
	check(`x | nope`, `x | nope`)
	check(`5 | 2`, `5 | 2`)
	check(`a || b`, `a || b`)
}

func TestPipeTransforms(t *testing.T) {
	e := testEvaluator(t, Options{})
	ctx := context.Background()

	env := map[string]interface{}{
		"name":  "homer",
		"items": []interface{}{"tacos", "chips"},
		"n":     "42",
		"x":     nil,
	}

	s, err := e.Interpolate(ctx, "HI ${name | upper | truncate(4)}", env)
	if err != nil {
		t.Fatal(err)
	}
	if s != "HI HOM…" {
		t.Fatalf("got %q", s)
	}

	s, err = e.Interpolate(ctx, "${items | join(\" | \")}", env)
	if err != nil {
		t.Fatal(err)
	}
	if s != "tacos | chips" {
		t.Fatalf("got %q", s)
	}

	v, err := e.EvaluateTemplate(ctx, "${n | number}", env)
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 42 {
		t.Fatalf("got %#v", v)
	}

	v, err = e.EvaluateTemplate(ctx, `${x | default("fallback")}`, env)
	if err != nil {
		t.Fatal(err)
	}
	if v != "fallback" {
		t.Fatalf("got %#v", v)
	}

	// Plain numbers aren't a transform chain.
	v, err = e.Evaluate(ctx, `5 | 2`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 7 {
		t.Fatalf("5 | 2 = %#v", v)
	}
}

func TestAddTransform(t *testing.T) {
	e := testEvaluator(t, Options{})
	ctx := context.Background()

	env := map[string]interface{}{"name": "homer"}

	// Before registration, "shout" isn't a transform, so the
	// source stands as written and the reference is undefined.
	v, err := e.Evaluate(ctx, `name | shout`, env)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("got %#v", v)
	}

	// Registration purges the program cache, so the same source
	// now rewrites.
	e.AddTransform("shout", func(x interface{}) string {
		return strings.ToUpper(toStr(x)) + "!"
	})

	v, err = e.Evaluate(ctx, `name | shout`, env)
	if err != nil {
		t.Fatal(err)
	}
	if v != "HOMER!" {
		t.Fatalf("got %#v", v)
	}
}
