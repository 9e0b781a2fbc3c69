// Package tools has development helpers for bot documents: HTML
// reference rendering, static analysis, call graphs, %inline
// expansion, and scripted expectation sessions.
//
// A Session scripts a conversation: each Step sends a chat line or an
// event and then requires the platform calls the bot should have made.
// Sessions run against an assembled bot whose client is a
// platform.Recorder, so nothing leaves the process.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/Comcast/rigging/bot"
	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/storage"
	. "github.com/Comcast/rigging/util/testutil"
)

// Output names one platform call a step expects.
type Output struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Method is the recorded call's method ("reply", "send",
	// "react", ...).
	Method string `json:"method" yaml:"method"`

	// Args are the argument values that must match.  Arguments the
	// call has but Args doesn't list are ignored.
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

// A Step sends one message or event and then checks expectations
// against the calls recorded since the step began.
type Step struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Message is a chat line for the bot's message dispatch.
	// Mutually exclusive with Event.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Event is a bare event name to emit.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// Wait is settle time before checking, for debounced handlers.
	Wait time.Duration `json:"wait,omitempty" yaml:"wait,omitempty"`

	// Expect lists the calls that must appear, in order.
	Expect []Output `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Session is mostly a sequence of Steps against one document.
type Session struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// User, Channel, and Guild are the projection ids the steps
	// speak as.  Blank fields get test defaults.
	User    string `json:"user,omitempty" yaml:"user,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Guild   string `json:"guild,omitempty" yaml:"guild,omitempty"`

	// Steps is the sequence this session runs.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Run processes all the Steps, dispatching through b and checking the
// recorder after each.
func (s *Session) Run(ctx context.Context, b *bot.Bot, rec *platform.Recorder) error {
	user := s.User
	if user == "" {
		user = "u-test"
	}
	channel := s.Channel
	if channel == "" {
		channel = "c-test"
	}
	guild := s.Guild
	if guild == "" {
		guild = "g-test"
	}

	for i, step := range s.Steps {
		mark := len(rec.Calls())

		actx := &core.ActionContext{
			User:    &platform.User{ID: user, Username: user},
			Guild:   &platform.Guild{ID: guild},
			Channel: &platform.Channel{ID: channel, GuildID: guild},
		}

		var err error
		switch {
		case step.Message != "":
			actx.Message = &platform.Message{
				ID:        fmt.Sprintf("m-%d", i+1),
				ChannelID: channel,
				GuildID:   guild,
				Content:   step.Message,
			}
			err = b.HandleMessage(ctx, actx)
		case step.Event != "":
			err = b.HandleEvent(ctx, step.Event, actx)
		default:
			return fmt.Errorf("step %d has neither message nor event", i)
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		if 0 < step.Wait {
			time.Sleep(step.Wait)
		}

		got := rec.Calls()[mark:]
		if err := expectCalls(step.Expect, got); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Doc, err)
		}
	}

	return nil
}

// expectCalls requires each expected output to match a recorded call,
// in order; extra calls between matches are fine.
func expectCalls(want []Output, got []platform.Call) error {
	at := 0
	for _, o := range want {
		found := false
		for ; at < len(got); at++ {
			if matchCall(o, got[at]) {
				found = true
				at++
				break
			}
		}
		if !found {
			return fmt.Errorf("no %q call matching %s (saw %s)",
				o.Method, JS(o.Args), JS(got))
		}
	}
	return nil
}

func matchCall(o Output, c platform.Call) bool {
	if o.Method != c.Method {
		return false
	}
	for k, v := range o.Args {
		have, ok := c.Args[k]
		if !ok || !storage.Eq(have, v) {
			return false
		}
	}
	return true
}
