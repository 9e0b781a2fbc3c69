package tools

import (
	"fmt"
	"html"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Comcast/rigging/botspec"
	"github.com/Comcast/rigging/core"
	. "github.com/Comcast/rigging/util/testutil"

	md "github.com/russross/blackfriday/v2"
)

// RenderDocHTML writes an HTML reference for a compiled document:
// commands with their options and cooldowns, event handlers with
// their gates, flows, variables, tables, and schedules.
func RenderDocHTML(d *botspec.Document, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	if d.Doc != "" {
		f(`<div class="docDoc doc">%s</div>`, md.Run([]byte(d.Doc)))
	}

	f(`<div class="config">prefix <code>%s</code>, storage <code>%s</code></div>`,
		esc(d.Config.Prefix), esc(d.Config.Storage))

	if 0 < len(d.Commands) {
		f(`<div class="commands"><h2>Commands</h2><table>`)
		for _, c := range d.Commands {
			f(`<tr class="command"><td><span id="command-%s" class="commandName">%s%s</span></td><td>`,
				c.Name, esc(d.Config.Prefix), c.Name)
			if c.Description != "" {
				f(`<div class="commandDoc doc">%s</div>`, md.Run([]byte(c.Description)))
			}
			if 0 < len(c.Options) {
				f(`<div class="options"><table>`)
				for _, o := range c.Options {
					required := ""
					if o.Required {
						required = " (required)"
					}
					f(`<tr><td><code>%s</code></td><td>%s%s</td><td>`, o.Name, o.Type, required)
					if o.Default != nil {
						f(`default <code>%s</code>`, esc(JS(o.Default)))
					}
					if 0 < len(o.Choices) {
						f(`one of <code>%s</code>`, esc(JS(o.Choices)))
					}
					f(`</td></tr>`)
				}
				f(`</table></div>`)
			}
			if 0 < c.CooldownWindow {
				f(`<div class="cooldown">cooldown %s</div>`, c.CooldownWindow)
			}
			renderCalls(f, d, c.Actions)
			renderActions(f, c.ActionSources)
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if 0 < len(d.Events) {
		f(`<div class="events"><h2>Events</h2><table>`)
		for i, e := range d.Events {
			f(`<tr class="event"><td><span id="event-%d" class="eventName">%s</span></td><td>`, i, esc(e.Event))
			var gates []string
			if e.When != nil {
				gates = append(gates, fmt.Sprintf("when <code>%s</code>", esc(JS(e.When))))
			}
			if e.Debounce != nil {
				gates = append(gates, "debounce "+esc(fmt.Sprintf("%v", e.Debounce)))
			}
			if e.Throttle != nil {
				gates = append(gates, "throttle "+esc(fmt.Sprintf("%v", e.Throttle)))
			}
			if e.Once {
				gates = append(gates, "once")
			}
			if 0 < len(gates) {
				f(`<div class="gates">%s</div>`, strings.Join(gates, ", "))
			}
			renderCalls(f, d, e.Actions)
			renderActions(f, e.ActionSources)
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if 0 < len(d.Flows) {
		f(`<div class="flows"><h2>Flows</h2><table>`)
		for _, name := range flowNames(d) {
			fl := d.Flows[name]
			f(`<tr class="flow"><td><span id="flow-%s" class="flowName">%s</span></td><td>`, name, name)
			if fl.Doc != "" {
				f(`<div class="flowDoc doc">%s</div>`, md.Run([]byte(fl.Doc)))
			}
			if 0 < len(fl.Params) {
				params := make([]string, 0, len(fl.Params))
				for _, p := range fl.Params {
					s := "<code>" + p.Name + "</code>"
					if p.Default != nil {
						s += " = <code>" + esc(JS(p.Default)) + "</code>"
					}
					params = append(params, s)
				}
				f(`<div class="params">params %s</div>`, strings.Join(params, ", "))
			}
			renderCalls(f, d, fl.Actions)
			renderActions(f, fl.ActionSources)
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if 0 < len(d.Variables) {
		names := make([]string, 0, len(d.Variables))
		for name := range d.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		f(`<div class="variables"><h2>Variables</h2><table>`)
		for _, name := range names {
			def := d.Variables[name]
			scope := def.Scope
			if scope == "" {
				scope = "global"
			}
			f(`<tr><td><code>%s</code></td><td>%s, %s</td><td>`, name, def.Type, scope)
			if def.Default != nil {
				f(`default <code>%s</code>`, esc(JS(def.Default)))
			}
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if 0 < len(d.Tables) {
		names := make([]string, 0, len(d.Tables))
		for name := range d.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		f(`<div class="tables"><h2>Tables</h2><table>`)
		for _, name := range names {
			def := d.Tables[name]
			cols := make([]string, 0, len(def.Columns))
			for col := range def.Columns {
				cols = append(cols, col)
			}
			sort.Strings(cols)
			rendered := make([]string, 0, len(cols))
			for _, col := range cols {
				rendered = append(rendered, fmt.Sprintf("<code>%s</code> %s", col, def.Columns[col].Type))
			}
			f(`<tr><td><code>%s</code></td><td>%s</td></tr>`, name, strings.Join(rendered, ", "))
		}
		f(`</table></div>`)
	}

	if 0 < len(d.Schedules) {
		f(`<div class="schedules"><h2>Schedules</h2><table>`)
		for _, s := range d.Schedules {
			f(`<tr class="schedule"><td><span id="schedule-%s" class="scheduleName">%s</span></td><td>`, s.Name, s.Name)
			f(`<div class="cron"><code>%s</code></div>`, esc(s.Cron))
			renderCalls(f, d, s.Actions)
			renderActions(f, s.ActionSources)
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	return nil
}

// renderCalls links the flows these actions reach, so a reader can
// chase a call.  Undefined targets render with a "missing" class.
func renderCalls(f func(string, ...interface{}), d *botspec.Document, acts []*core.Action) {
	targets := make(map[string]bool)
	walkActions(acts, func(a *core.Action) {
		if a.Kind == "call_flow" {
			if to := a.StringField("flow"); to != "" {
				targets[to] = true
			}
		}
		if a.ErrorHandler != "" {
			targets[a.ErrorHandler] = true
		}
	})
	if len(targets) == 0 {
		return
	}
	links := make([]string, 0, len(targets))
	for _, name := range keysToStringSlice(targets) {
		switch {
		case strings.Contains(name, "${"):
			links = append(links, "<code>"+esc(name)+"</code>")
		case d.Flows[name] != nil:
			links = append(links, fmt.Sprintf(`<a href="#flow-%s"><code>%s</code></a>`, name, name))
		default:
			links = append(links, fmt.Sprintf(`<code class="missing">%s</code>`, esc(name)))
		}
	}
	f(`<div class="calls">flows %s</div>`, strings.Join(links, ", "))
}

func renderActions(f func(string, ...interface{}), src interface{}) {
	if src == nil {
		return
	}
	f(`<div class="code"><pre>%s</pre></div>`, esc(Pretty(src)))
}

func esc(s string) string {
	return html.EscapeString(s)
}

// RenderDocPage writes a complete HTML page for the document,
// optionally with an inline Mermaid call graph.
func RenderDocPage(d *botspec.Document, out io.Writer, cssFiles []string, includeGraph bool) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/doc-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, esc(d.Name))

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	if includeGraph {
		fmt.Fprintf(out, `
  <script type="module">
    import mermaid from "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.esm.min.mjs";
    mermaid.initialize({ startOnLoad: true });
  </script>
`)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, esc(d.Name))

	if includeGraph {
		fmt.Fprintf(out, "<pre class=\"mermaid\">\n")
		if err := Mermaid(d, out, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "</pre>\n")
	}

	if err := RenderDocHTML(d, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderDocPage loads a document file (with %inline expansion)
// and renders its page.
func ReadAndRenderDocPage(filename string, cssFiles []string, out io.Writer, includeGraph bool) error {
	d, err := ReadDoc(filename)
	if err != nil {
		return err
	}
	return RenderDocPage(d, out, cssFiles, includeGraph)
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
