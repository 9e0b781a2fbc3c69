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

package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/rigging/botspec"
)

type MermaidOpts struct {
	// ShowRescues labels error_handler edges.
	ShowRescues bool `json:"showRescues"`

	// FlowFill is the fill color for flow nodes.
	FlowFill string `json:"flowFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaid.js.org/) input file for
// the document's call graph: commands, events, and schedules on top,
// the flows they reach below.
func Mermaid(d *botspec.Document, w io.Writer, opts *MermaidOpts) error {

	if opts == nil {
		opts = &MermaidOpts{
			ShowRescues: true,
			FlowFill:    "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph TB\n")

	nids := make(map[string]string)
	num := 0

	node := func(name string, isFlow bool) string {
		if nid, already := nids[name]; already {
			return nid
		}
		num++
		nid := fmt.Sprintf("n%d", num)
		nids[name] = nid

		label := strings.Replace(name, `"`, `'`, -1)
		if isFlow {
			fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, label)
			if opts.FlowFill != "" {
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.FlowFill)
			}
		} else {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		}

		return nid
	}

	// Entry points render even when they call nothing.
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
		from := node(call.From, strings.HasPrefix(call.From, "flow:"))
		to := node("flow:"+call.To, true)
		label := ""
		if call.Rescue && opts.ShowRescues {
			label = `-- "rescue"`
		}
		fmt.Fprintf(w, "  %s %s --> %s\n", from, label, to)
	}

	fmt.Fprintf(w, "\n")

	return nil
}
