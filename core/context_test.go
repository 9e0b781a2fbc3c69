package core

import (
	"testing"

	"github.com/Comcast/rigging/platform"
)

func TestContextScope(t *testing.T) {
	c := &ActionContext{
		User: &platform.User{ID: "homer"},
		Message: &platform.Message{
			ID:        "m1",
			ChannelID: "c1",
			GuildID:   "g1",
		},
	}
	sc := c.Scope()
	if sc.GuildID != "g1" || sc.ChannelID != "c1" || sc.UserID != "homer" {
		t.Fatalf("got %#v", sc)
	}

	// Explicit guild/channel projections win over message fields.
	c.Guild = &platform.Guild{ID: "g2"}
	c.Channel = &platform.Channel{ID: "c2", GuildID: "g2"}
	sc = c.Scope()
	if sc.GuildID != "g2" || sc.ChannelID != "c2" {
		t.Fatalf("got %#v", sc)
	}
}

func TestContextEnv(t *testing.T) {
	c := &ActionContext{
		Event: "message_create",
		User:  &platform.User{ID: "1", Username: "homer"},
		Options: map[string]interface{}{
			"flavor": "mild",
		},
		Data: map[string]interface{}{
			"reaction": map[string]interface{}{"emoji": "🌮"},
		},
	}
	env := c.Env()

	if env["event"] != "message_create" {
		t.Fatalf("got %#v", env["event"])
	}
	if env["user"].(*platform.User).Username != "homer" {
		t.Fatalf("got %#v", env["user"])
	}
	if _, have := env["reaction"]; !have {
		t.Fatal("Data key didn't merge")
	}

	// "args" and "options" are the same mapping.
	args := env["args"].(map[string]interface{})
	opts := env["options"].(map[string]interface{})
	if args["flavor"] != "mild" || opts["flavor"] != "mild" {
		t.Fatalf("got %#v / %#v", args, opts)
	}
	args["spice"] = "hot"
	if opts["spice"] != "hot" {
		t.Fatal("args and options are different maps")
	}

	// Locals shadow everything.
	c2 := c.WithLocal("user", "impostor")
	if c2.Env()["user"] != "impostor" {
		t.Fatalf("got %#v", c2.Env()["user"])
	}
	if c.Env()["user"].(*platform.User).ID != "1" {
		t.Fatal("WithLocal mutated the original")
	}
}

func TestFlowScope(t *testing.T) {
	parent := NewFlowScope("outer", nil)
	child := NewFlowScope("inner", parent)

	child.SetVar("x", 1)
	if v, have := child.Var("x"); !have || v != 1 {
		t.Fatalf("got %#v, %v", v, have)
	}
	if _, have := parent.Var("x"); have {
		t.Fatal("child var leaked into parent")
	}

	// The first return wins.
	child.SetReturn("first")
	child.SetReturn("second")
	if v, returned := child.Returned(); !returned || v != "first" {
		t.Fatalf("got %#v, %v", v, returned)
	}
	if child.Done() != true {
		t.Fatal("returned scope not done")
	}

	// Abort climbs the call chain.
	child.Abort()
	if !child.Aborted() || !parent.Aborted() {
		t.Fatal("abort didn't reach the caller")
	}
	if _, returned := parent.Returned(); returned {
		t.Fatal("abort faked a return")
	}
}

func TestFlowScopeIsolation(t *testing.T) {
	// Two invocations of one flow name never share a scope.
	a := NewFlowScope("f", nil)
	b := NewFlowScope("f", nil)
	a.SetVar("x", "a's")
	a.Abort()
	if b.Aborted() {
		t.Fatal("abort crossed invocations")
	}
	if _, have := b.Var("x"); have {
		t.Fatal("vars crossed invocations")
	}
}
