package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConsoleLines(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	c := NewConsole(&buf)

	id, err := c.Send(ctx, "c-cantina", "tacos are ready")
	if err != nil {
		t.Fatal(err)
	}
	if id != "console-1" {
		t.Fatal(id)
	}
	if _, err = c.Reply(ctx, "c-cantina", "m-1", "with queso"); err != nil {
		t.Fatal(err)
	}
	if err = c.React(ctx, "c-cantina", "m-1", "🌮"); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatal(lines)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["call"] != "send" || sent["channel"] != "c-cantina" || sent["id"] != "console-1" {
		t.Fatal(sent)
	}

	var reply map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &reply); err != nil {
		t.Fatal(err)
	}
	if reply["call"] != "reply" || reply["to"] != "m-1" {
		t.Fatal(reply)
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	r := NewRecorder()

	if r.Last() != nil {
		t.Fatal("phantom call")
	}

	if _, err := r.Send(ctx, "c-1", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := r.Timeout(ctx, "g-1", "u-homer", 10*time.Second); err != nil {
		t.Fatal(err)
	}

	calls := r.Calls()
	if len(calls) != 2 {
		t.Fatal(calls)
	}
	if calls[0].Method != "send" {
		t.Fatal(calls[0])
	}
	last := r.Last()
	if last == nil || last.Method != "timeout" || last.Args["for"] != "10s" {
		t.Fatal(last)
	}

	r.Fail = errors.New("platform down")
	if _, err := r.Send(ctx, "c-1", "nope"); err == nil {
		t.Fatal("expected a failure")
	}
	if len(r.Calls()) != 2 {
		t.Fatal("a failed call was recorded")
	}
}

func TestMemberHasRole(t *testing.T) {
	var m *Member
	if m.HasRole("r-1") {
		t.Fatal("nil member has roles")
	}

	m = &Member{Roles: []string{"r-cook", "r-admin"}}
	if !m.HasRole("r-cook") {
		t.Fatal(m.Roles)
	}
	if m.HasRole("r-diner") {
		t.Fatal(m.Roles)
	}
}
