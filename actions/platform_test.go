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

package actions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
	"github.com/Comcast/rigging/platform"
)

func testDeps(t *testing.T) (*core.Deps, *platform.Recorder) {
	t.Helper()
	ev, err := expr.NewEvaluator(expr.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reg := core.NewRegistry()
	if err := Install(reg); err != nil {
		t.Fatal(err)
	}
	rec := platform.NewRecorder()
	deps := &core.Deps{
		Evaluator: ev,
		Registry:  reg,
		Executor:  core.NewExecutor(),
		Client:    rec,
	}
	return deps, rec
}

// msgContext is homer posting in #general.
func msgContext() *core.ActionContext {
	return &core.ActionContext{
		Event:   "message_create",
		User:    &platform.User{ID: "u-homer", Username: "homer"},
		Guild:   &platform.Guild{ID: "g1", Name: "springfield"},
		Channel: &platform.Channel{ID: "c1", GuildID: "g1", Name: "general"},
		Message: &platform.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Content: "hello"},
	}
}

func run(t *testing.T, deps *core.Deps, actx *core.ActionContext, src map[string]interface{}) *core.ActionResult {
	t.Helper()
	a, err := core.NormalizeAction(src)
	if err != nil {
		t.Fatal(err)
	}
	return deps.Executor.ExecuteOne(context.Background(), a, actx, deps)
}

func mustRun(t *testing.T, deps *core.Deps, actx *core.ActionContext, src map[string]interface{}) *core.ActionResult {
	t.Helper()
	r := run(t, deps, actx, src)
	if !r.Success {
		t.Fatal(r.Err)
	}
	return r
}

func TestReply(t *testing.T) {
	deps, rec := testDeps(t)

	r := mustRun(t, deps, msgContext(), map[string]interface{}{
		"reply": map[string]interface{}{"content": "hi ${user.username}"},
	})

	call := rec.Last()
	if call == nil || call.Method != "reply" {
		t.Fatal(call)
	}
	if call.Args["channel"] != "c1" || call.Args["to"] != "m1" || call.Args["content"] != "hi homer" {
		t.Fatal(call.Args)
	}
	data, is := r.Data.(map[string]interface{})
	if !is || data["message_id"] != "rec-1" {
		t.Fatalf("got %#v", r.Data)
	}
}

func TestReplyWithoutMessage(t *testing.T) {
	deps, rec := testDeps(t)

	actx := msgContext()
	actx.Message = nil
	mustRun(t, deps, actx, map[string]interface{}{
		"reply": map[string]interface{}{"content": "hi"},
	})

	call := rec.Last()
	if call == nil || call.Method != "send" || call.Args["channel"] != "c1" {
		t.Fatal(call)
	}
}

func TestSendMessage(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"send_message": map[string]interface{}{
			"channel": "c-announce",
			"content": "chips restocked",
		},
	})
	if call := rec.Last(); call.Method != "send" || call.Args["channel"] != "c-announce" {
		t.Fatal(call)
	}

	// Channel defaults to the trigger's.
	mustRun(t, deps, msgContext(), map[string]interface{}{
		"send_message": map[string]interface{}{"content": "queso too"},
	})
	if call := rec.Last(); call.Args["channel"] != "c1" {
		t.Fatal(call)
	}
}

func TestSendDM(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"send_dm": map[string]interface{}{"content": "psst"},
	})
	if call := rec.Last(); call.Method != "dm" || call.Args["user"] != "u-homer" {
		t.Fatal(call)
	}
}

func TestEditAndDelete(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"edit_message": map[string]interface{}{
			"message": "m7",
			"content": "fixed",
		},
	})
	if call := rec.Last(); call.Method != "edit" || call.Args["message"] != "m7" || call.Args["content"] != "fixed" {
		t.Fatal(call)
	}

	// delete_message defaults to the triggering message.
	mustRun(t, deps, msgContext(), map[string]interface{}{
		"delete_message": nil,
	})
	if call := rec.Last(); call.Method != "delete" || call.Args["message"] != "m1" {
		t.Fatal(call)
	}
}

func TestReact(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"react": map[string]interface{}{"emoji": "🌮"},
	})
	if call := rec.Last(); call.Method != "react" || call.Args["emoji"] != "🌮" || call.Args["message"] != "m1" {
		t.Fatal(call)
	}
}

func TestRoles(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"add_role": map[string]interface{}{"role": "r-regular"},
	})
	if call := rec.Last(); call.Method != "add_role" ||
		call.Args["guild"] != "g1" || call.Args["user"] != "u-homer" || call.Args["role"] != "r-regular" {
		t.Fatal(call)
	}

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"remove_role": map[string]interface{}{
			"role": "r-regular",
			"user": "u-bart",
		},
	})
	if call := rec.Last(); call.Method != "remove_role" || call.Args["user"] != "u-bart" {
		t.Fatal(call)
	}
}

func TestModeration(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"kick": map[string]interface{}{"reason": "spamming ${message.content}"},
	})
	if call := rec.Last(); call.Method != "kick" || call.Args["reason"] != "spamming hello" {
		t.Fatal(call)
	}

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"ban": map[string]interface{}{"user": "u-grifter"},
	})
	if call := rec.Last(); call.Method != "ban" || call.Args["user"] != "u-grifter" {
		t.Fatal(call)
	}

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"timeout": map[string]interface{}{"duration": "10m"},
	})
	if call := rec.Last(); call.Method != "timeout" || call.Args["for"] != "10m0s" {
		t.Fatal(call)
	}
}

func TestRandomReply(t *testing.T) {
	deps, rec := testDeps(t)

	mustRun(t, deps, msgContext(), map[string]interface{}{
		"random_reply": map[string]interface{}{
			"choices": []interface{}{"ay caramba"},
		},
	})
	if call := rec.Last(); call.Method != "reply" || call.Args["content"] != "ay caramba" {
		t.Fatal(call)
	}

	r := run(t, deps, msgContext(), map[string]interface{}{
		"random_reply": map[string]interface{}{
			"choices": []interface{}{},
		},
	})
	if r.Success {
		t.Fatal("replied from an empty list")
	}
}

func TestClientFailure(t *testing.T) {
	deps, rec := testDeps(t)
	rec.Fail = errors.New("api down")

	r := run(t, deps, msgContext(), map[string]interface{}{
		"reply": map[string]interface{}{"content": "hi"},
	})
	if r.Success || r.Err == nil || !strings.Contains(r.Err.Error(), "api down") {
		t.Fatalf("got %#v", r)
	}
}

func TestNoClient(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Client = nil

	r := run(t, deps, msgContext(), map[string]interface{}{
		"reply": map[string]interface{}{"content": "hi"},
	})
	if r.Success || !strings.Contains(r.Err.Error(), "no platform client") {
		t.Fatalf("got %#v", r)
	}
}

func TestValidation(t *testing.T) {
	deps, rec := testDeps(t)

	r := run(t, deps, msgContext(), map[string]interface{}{
		"reply": nil,
	})
	if r.Success {
		t.Fatal("replied with no content")
	}
	var aee *core.ActionExecutionError
	if !errors.As(r.Err, &aee) || aee.Kind != "reply" {
		t.Fatal(r.Err)
	}
	if rec.Last() != nil {
		t.Fatal("validation failure still hit the platform")
	}
}
