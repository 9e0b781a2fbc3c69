package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/rigging/botspec"
)

// Dot makes a Graphviz dot file for the document's call graph.
//
// The optional highlight is the name of a node ("flow:greet",
// "command:order") to color red.
func Dot(d *botspec.Document, w io.Writer, highlight string) error {

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	seen := make(map[string]bool)
	node := func(name string, isFlow bool) {
		if seen[name] {
			return
		}
		seen[name] = true

		fillcolor := "#2d93ad"
		shape := "record"
		if isFlow {
			fillcolor = "#99ddc8"
			shape = "note"
		}
		color := "black"
		if highlight == name {
			color = "red"
			fillcolor = "#f98b8b"
		}
		fmt.Fprintf(w, "  \"%s\" [shape=\"%s\", color=\"%s\", fillcolor=\"%s\", label=\"%s\"]\n",
			escape(name), shape, color, fillcolor, escape(name))
	}

	for _, c := range d.Commands {
		node("command:"+c.Name, false)
	}
	for _, e := range d.Events {
		node("event:"+e.Event, false)
	}
	for _, s := range d.Schedules {
		node("schedule:"+s.Name, false)
	}
	for _, name := range flowNames(d) {
		node("flow:"+name, true)
	}

	for _, call := range FlowCalls(d) {
		node(call.From, strings.HasPrefix(call.From, "flow:"))
		node("flow:"+call.To, true)
		style := "solid"
		label := ""
		if call.Rescue {
			style = "dashed"
			label = "rescue"
		}
		fmt.Fprintf(w, "  \"%s\" -> \"%s\" [ style=\"%s\" label=\"%s\" ]\n",
			escape(call.From), escape("flow:"+call.To), style, label)
	}

	fmt.Fprintf(w, "}\n")
	return nil
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(d *botspec.Document, basename string, highlight string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(d, dotfile, highlight); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err := dotfile.Close(); err != nil {
		return pngname, err
	}
	cmd := "dot -Tpng -Gstart=1 " + dotname + " > " + pngname
	if err := exec.Command("bash", "-c", cmd).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}
