package tools

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderDocHTML(t *testing.T) {
	var out bytes.Buffer
	if err := RenderDocHTML(fiesta(t), &out); err != nil {
		t.Fatal(err)
	}
	s := out.String()

	for _, want := range []string{
		`id="command-order"`,
		`!order`,
		`(required)`,
		`one of <code>[&#34;tacos&#34;,&#34;chips&#34;]</code>`,
		`id="flow-confirm"`,
		`<a href="#flow-confirm">`,
		`<code class="missing">lurk</code>`,
		`debounce 50ms`,
		`<code>motd</code>`,
		`0 3 * * *`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in\n%s", want, s)
		}
	}
}

func TestRenderDocPage(t *testing.T) {
	t.Run("withoutGraph", func(t *testing.T) {
		var out bytes.Buffer
		if err := RenderDocPage(fiesta(t), &out, []string{"doc.css"}, false); err != nil {
			t.Fatal(err)
		}
		s := out.String()
		if !strings.Contains(s, "<title>fiesta</title>") || !strings.Contains(s, "doc.css") {
			t.Fatal(s)
		}
		if strings.Contains(s, "mermaid") {
			t.Fatal("graph rendered without includeGraph")
		}
	})

	t.Run("withGraph", func(t *testing.T) {
		var out bytes.Buffer
		if err := RenderDocPage(fiesta(t), &out, nil, true); err != nil {
			t.Fatal(err)
		}
		s := out.String()
		if !strings.Contains(s, `<pre class="mermaid">`) || !strings.Contains(s, "graph TB") {
			t.Fatal(s)
		}
	})
}

func TestReadAndRenderDocPage(t *testing.T) {
	dir := t.TempDir()

	actions := `[{reply: {content: pong}}]`
	if err := os.WriteFile(filepath.Join(dir, "pong.yaml"), []byte(actions), 0644); err != nil {
		t.Fatal(err)
	}

	doc := `
config:
  prefix: "!"
commands:
  - name: ping
    actions: %inline("pong.yaml")
`
	filename := filepath.Join(dir, "lab.yaml")
	if err := os.WriteFile(filename, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := ReadAndRenderDocPage(filename, nil, &out, false); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "<title>lab</title>") || !strings.Contains(s, "!ping") {
		t.Fatal(s)
	}
}
