package tools

import (
	"bytes"
	"strings"
	"testing"
)

func TestMermaid(t *testing.T) {
	var out bytes.Buffer
	if err := Mermaid(fiesta(t), &out, nil); err != nil {
		t.Fatal(err)
	}
	s := out.String()

	if !strings.HasPrefix(s, "graph TB\n") {
		t.Fatal(s)
	}
	for _, want := range []string{"command:order", "flow:confirm", "-->", `-- "rescue"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in\n%s", want, s)
		}
	}
}
