/* Copyright 2025 Comcast Cable Communications Management, LLC
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

// Package main is rigdoc: YAML bot document in, HTML reference out.
//
//	rigdoc bot.yaml > bot.html
//	rigdoc -graph=false < bot.yaml > bot.html
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Comcast/rigging/botspec"
	"github.com/Comcast/rigging/tools"
)

func main() {

	var (
		graph = flag.Bool("graph", true, "include a Mermaid call graph")
		css   = flag.String("css", "", "comma-separated CSS hrefs for the page head")
		dir   = flag.String("dir", ".", "directory for %inline resolution when reading stdin")
		name  = flag.String("name", "bot", "document name when reading stdin")
	)

	flag.Parse()

	var cssFiles []string
	if *css != "" {
		cssFiles = strings.Split(*css, ",")
	}

	switch flag.NArg() {
	case 0:
		bs, err := tools.ReadAllWithInlines(os.Stdin, *dir)
		if err != nil {
			panic(err)
		}
		d, err := botspec.ParseNamed(bs, *name)
		if err != nil {
			panic(err)
		}
		if err = tools.RenderDocPage(d, os.Stdout, cssFiles, *graph); err != nil {
			panic(err)
		}
	case 1:
		if err := tools.ReadAndRenderDocPage(flag.Arg(0), cssFiles, os.Stdout, *graph); err != nil {
			panic(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "usage: rigdoc [FLAGS] [DOC.yaml]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
}
