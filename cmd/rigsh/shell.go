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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/Comcast/rigging/bot"
	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/platform"
)

// An Input is one decoded event line.
//
//	{"message":{"content":"!order tacos","channelId":"c-1"}}
//	{"event":"member_join","user":{"id":"u-1","username":"bart"}}
//
// Projections the line omits get shell defaults.
type Input struct {
	// Event names a non-message trigger.  Blank means the line is a
	// message.
	Event string `json:"event,omitempty"`

	Message     *platform.Message     `json:"message,omitempty"`
	User        *platform.User        `json:"user,omitempty"`
	Member      *platform.Member      `json:"member,omitempty"`
	Guild       *platform.Guild       `json:"guild,omitempty"`
	Channel     *platform.Channel     `json:"channel,omitempty"`
	Interaction *platform.Interaction `json:"interaction,omitempty"`

	// Data carries extra payload into the expression environment.
	Data map[string]interface{} `json:"data,omitempty"`
}

// A shell feeds input lines to one bot, standing in for the chat
// platform's event stream.
type shell struct {
	bot *bot.Bot

	// user, channel, and guild are the projection ids filled in when
	// an input line doesn't carry its own.
	user    string
	channel string
	guild   string

	echo bool

	sync.Mutex
	n int
}

// read consumes lines until EOF or a bare "quit".
func (sh *shell) read(ctx context.Context, r io.Reader) error {
	in := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := in.ReadString('\n')
		if err == io.EOF || strings.TrimSpace(line) == "quit" {
			return nil
		}
		if err != nil {
			return err
		}
		sh.line(ctx, line)
	}
}

// line processes one input line.  Blank lines and '#' comments are
// skipped, a line starting with '{' is a JSON Input, and anything else
// is plain chat content from the shell user.
func (sh *shell) line(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	if sh.echo {
		fmt.Printf("input %s\n", line)
	}

	var in Input
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			fmt.Fprintf(os.Stderr, "bad input: %s\n", err)
			return
		}
	} else {
		in.Message = &platform.Message{Content: line}
	}

	if err := sh.dispatch(ctx, &in); err != nil {
		log.Printf("dispatch error: %v", err)
	}
}

// dispatch fills in shell defaults and hands the input to the bot.
func (sh *shell) dispatch(ctx context.Context, in *Input) error {
	sh.Lock()
	sh.n++
	n := sh.n
	sh.Unlock()

	actx := &core.ActionContext{
		User:        in.User,
		Member:      in.Member,
		Guild:       in.Guild,
		Channel:     in.Channel,
		Message:     in.Message,
		Interaction: in.Interaction,
		Data:        in.Data,
	}

	if actx.User == nil {
		actx.User = &platform.User{ID: sh.user, Username: sh.user}
	}
	if actx.Channel == nil {
		actx.Channel = &platform.Channel{ID: sh.channel, GuildID: sh.guild}
	}
	if actx.Guild == nil && sh.guild != "" {
		actx.Guild = &platform.Guild{ID: sh.guild}
	}

	if m := actx.Message; m != nil {
		if m.ID == "" {
			m.ID = fmt.Sprintf("m-%d", n)
		}
		if m.ChannelID == "" {
			m.ChannelID = actx.Channel.ID
		}
		if m.GuildID == "" && actx.Guild != nil {
			m.GuildID = actx.Guild.ID
		}
		if m.Author == nil {
			m.Author = actx.User
		}
		return sh.bot.HandleMessage(ctx, actx)
	}

	if in.Event == "" {
		return fmt.Errorf("input has neither message nor event")
	}
	return sh.bot.HandleEvent(ctx, in.Event, actx)
}
