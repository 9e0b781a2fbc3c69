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

// Package main is rigsh, a development shell for bot documents.  It
// assembles a bot whose platform client writes each call as one JSON
// line, then feeds the bot events read as JSON lines from stdin, from
// websocket connections it serves (-listen), or from a websocket it
// dials (-connect).
//
//	rigsh bot.yaml
//	rigsh -listen :8080 bot.yaml
//	rigsh -connect ws://localhost:8080/ws bot.yaml
//
// An input line that doesn't start with '{' is taken as plain chat
// from the shell user, so "!ping" works as typed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Comcast/rigging/bot"
	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/tools"
	. "github.com/Comcast/rigging/util/testutil"
)

func main() {

	var (
		forceMem = flag.Bool("mem", false, "force in-memory storage")
		record   = flag.Bool("record", false, "record platform calls and dump them at exit")
		echo     = flag.Bool("echo", false, "echo input lines")
		user     = flag.String("user", "shell", "user id for plain input lines")
		channel  = flag.String("channel", "shell", "channel id for plain input lines")
		guild    = flag.String("guild", "", "guild id for plain input lines")
		listen   = flag.String("listen", "", `serve the shell over websockets (":8080")`)
		connect  = flag.String("connect", "", `dial a websocket event feed ("ws://host:8080/ws")`)
		verbose  = flag.Bool("v", false, "verbose")
	)

	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: rigsh [FLAGS] DOC.yaml\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *listen != "" && *connect != "" {
		fmt.Fprintf(os.Stderr, "-listen and -connect are mutually exclusive\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc, err := tools.ReadDoc(flag.Arg(0))
	if err != nil {
		panic(err)
	}
	if *forceMem {
		doc.Config.Storage = "mem"
		doc.Config.Path = ""
	}

	var (
		rec  *platform.Recorder
		out  io.Writer = os.Stdout
		hose *firehose
		feed *wsFeed
	)

	switch {
	case *listen != "":
		hose = &firehose{}
		out = io.MultiWriter(os.Stdout, hose)
	case *connect != "":
		if feed, err = dialFeed(*connect); err != nil {
			panic(err)
		}
		defer feed.Close()
		out = feed
	}

	var client platform.Client = platform.NewConsole(out)
	if *record {
		rec = platform.NewRecorder()
		client = rec
	}

	b, err := bot.Assemble(ctx, doc, bot.Options{
		Client:  client,
		Verbose: *verbose,
	})
	if err != nil {
		panic(err)
	}
	defer b.Close()

	sh := &shell{
		bot:     b,
		user:    *user,
		channel: *channel,
		guild:   *guild,
		echo:    *echo,
	}

	switch {
	case hose != nil:
		err = serve(ctx, *listen, sh, hose)
	case feed != nil:
		err = feed.loop(ctx, sh)
	default:
		err = sh.read(ctx, os.Stdin)
	}
	if err != nil {
		panic(err)
	}

	if rec != nil {
		fmt.Println(Pretty(rec.Calls()))
	}
}
