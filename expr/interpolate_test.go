package expr

import (
	"context"
	"testing"
)

func TestInterpolate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	env := map[string]interface{}{
		"user": map[string]interface{}{
			"username": "homer",
			"warnings": 3,
		},
	}

	check := func(tmpl, want string) {
		got, err := e.Interpolate(ctx, tmpl, env)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("%q rendered as %q, wanted %q", tmpl, got, want)
		}
	}

	check(`Hello, ${user.username}!`, "Hello, homer!")
	check(`${user.username} has ${user.warnings} warnings`, "homer has 3 warnings")
	check(`no spans here`, "no spans here")
	check(`${user.warnings + 1}`, "4")
	check(`${user.warnings / 2}`, "1.5")
	check(`${1/0} and ${0/0}`, "Infinity and NaN")

	// Missing and null both render empty.
	check(`[${user.nachos}]`, "[]")
	check(`[${nachos}]`, "[]")

	// Nested braces inside a span.
	check(`${ {likes: "tacos"}.likes }`, "tacos")

	// A close brace inside a string literal doesn't end the span.
	check(`${ "}" + user.username }`, "}homer")

	// Unterminated spans stay literal.
	check(`broken ${user.username`, "broken ${user.username")

	// Containers render as JSON.
	check(`${ ["a", 1] }`, `["a",1]`)
}

func TestEvaluateTemplate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := testEvaluator(t, Options{})

	env := map[string]interface{}{
		"items": []interface{}{"tacos", "chips"},
		"n":     2,
	}

	// Exactly one span spanning the whole string keeps the raw
	// value.
	v, err := e.EvaluateTemplate(ctx, `${items}`, env)
	if err != nil {
		t.Fatal(err)
	}
	if a, is := v.([]interface{}); !is || len(a) != 2 {
		t.Fatalf("got %#v (%T)", v, v)
	}

	// Anything more and it's a string again.
	v, err = e.EvaluateTemplate(ctx, ` ${items}`, env)
	if err != nil {
		t.Fatal(err)
	}
	if v != ` ["tacos","chips"]` {
		t.Fatalf("got %#v", v)
	}

	// Non-strings pass through.
	if v, err = e.EvaluateTemplate(ctx, 42, env); err != nil || v != 42 {
		t.Fatalf("got %#v, %v", v, err)
	}

	// Deep resolution through maps and slices.
	v, err = e.EvaluateTemplate(ctx, map[string]interface{}{
		"content": "count: ${n}",
		"extra": []interface{}{
			"${n * 2}",
		},
	}, env)
	if err != nil {
		t.Fatal(err)
	}
	m := v.(map[string]interface{})
	if m["content"] != "count: 2" {
		t.Fatalf("got %#v", m)
	}
	if f, is := m["extra"].([]interface{})[0].(float64); !is || f != 4 {
		t.Fatalf("got %#v", m)
	}
}

func TestJSString(t *testing.T) {
	for _, c := range []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"tacos", "tacos"},
		{true, "true"},
		{false, "false"},
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{float64(-0.25), "-0.25"},
		{float64(1e21), "1e+21"},
		{map[string]interface{}{"a": float64(1)}, `{"a":1}`},
	} {
		if got := jsString(c.in); got != c.want {
			t.Fatalf("jsString(%#v) = %q, wanted %q", c.in, got, c.want)
		}
	}
}

func TestHasExpressions(t *testing.T) {
	for s, want := range map[string]bool{
		"hi ${name}":       true,
		"${a} and ${b}":    true,
		"plain":            false,
		"broken ${no end":  false,
		"just a $ and {x}": false,
	} {
		if got := HasExpressions(s); got != want {
			t.Fatalf("HasExpressions(%q) = %v", s, got)
		}
	}
}

func TestParseTemplate(t *testing.T) {
	segs := parseTemplate(`a ${b} c ${d} e`)
	if len(segs) != 5 {
		t.Fatalf("got %#v", segs)
	}
	for i, want := range []bool{false, true, false, true, false} {
		if segs[i].isExpr != want {
			t.Fatalf("segment %d: %#v", i, segs[i])
		}
	}
}
