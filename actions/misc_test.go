package actions

import (
	"fmt"
	"sync"
	"testing"
)

func TestLogAction(t *testing.T) {
	deps, _ := testDeps(t)

	var mu sync.Mutex
	var lines []string
	old := Logf
	Logf = func(format string, args ...interface{}) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf(format, args...))
		mu.Unlock()
	}
	defer func() { Logf = old }()

	actx := msgContext()
	actx.Options = map[string]interface{}{"n": 3}

	r := mustRun(t, deps, actx, map[string]interface{}{
		"log": map[string]interface{}{"message": "ate ${args.n} tacos"},
	})
	if r.Data != "ate 3 tacos" {
		t.Fatal(r.Data)
	}

	mustRun(t, deps, actx, map[string]interface{}{
		"log": map[string]interface{}{"message": "low on queso", "level": "warn"},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 || lines[0] != "[info] ate 3 tacos" || lines[1] != "[warn] low on queso" {
		t.Fatal(lines)
	}
}

func TestLogValidation(t *testing.T) {
	deps, _ := testDeps(t)

	if r := run(t, deps, msgContext(), map[string]interface{}{"log": nil}); r.Success {
		t.Fatal("logged nothing")
	}
}
