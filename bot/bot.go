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

// Package bot assembles a compiled botspec.Document into a running
// bot: evaluator, state manager over the configured storage backend,
// action registry, executor, flow engine, event router, and scheduler,
// all wired through one core.Deps.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Comcast/rigging/actions"
	"github.com/Comcast/rigging/botspec"
	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/event"
	"github.com/Comcast/rigging/expr"
	"github.com/Comcast/rigging/flow"
	"github.com/Comcast/rigging/platform"
	"github.com/Comcast/rigging/state"
	"github.com/Comcast/rigging/storage"
	"github.com/Comcast/rigging/storage/bolt"
	"github.com/Comcast/rigging/storage/mem"
	"github.com/Comcast/rigging/storage/sqlite"
)

// Options configures Assemble.
type Options struct {
	// Client receives the bot's platform writes.  With a nil
	// Client, actions that need one fail (and get logged); the
	// state, flow, and event machinery still runs.
	Client platform.Client

	// Expr tunes the evaluator (cache sizes, timeout, extra
	// functions).
	Expr expr.Options

	// Errors receives router and scheduler failures.  Leave nil to
	// have them logged.
	Errors chan error

	// Verbose turns on dispatch logging.
	Verbose bool
}

// A Bot is one assembled document.
type Bot struct {
	Doc *botspec.Document

	// Deps is the capability bundle handlers run with.
	Deps *core.Deps

	Router    *event.Router
	Engine    *flow.Engine
	Scheduler *event.Scheduler

	Verbose bool

	commands  map[string]*botspec.Command
	schedules map[string]*botspec.Schedule
	prefix    string
}

// UnknownCommand means the document declares no such command.
type UnknownCommand struct {
	Name string
}

func (e *UnknownCommand) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// Assemble compiles (if needed) and wires a document.  The context
// governs table creation and arms the document's schedules; cancel it
// to stop them.
func Assemble(ctx context.Context, doc *botspec.Document, opts Options) (*Bot, error) {
	if err := doc.Compile(); err != nil {
		return nil, err
	}

	ev, err := expr.NewEvaluator(opts.Expr)
	if err != nil {
		return nil, err
	}

	store, err := openStore(doc.Config)
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(store)
	if err := mgr.RegisterVariables(doc.Variables); err != nil {
		mgr.Close()
		return nil, err
	}
	if err := mgr.RegisterTables(ctx, doc.Tables); err != nil {
		mgr.Close()
		return nil, err
	}

	reg := core.NewRegistry()
	if err := actions.Install(reg); err != nil {
		mgr.Close()
		return nil, err
	}
	engine := flow.NewEngine()
	engine.InstallHandlers(reg)
	for name, f := range doc.Flows {
		if err := engine.Register(&flow.Flow{
			Name:    name,
			Params:  f.Params,
			Actions: f.Actions,
		}); err != nil {
			mgr.Close()
			return nil, err
		}
	}

	router := event.NewRouter()
	router.Errors = opts.Errors

	b := &Bot{
		Doc:       doc,
		Router:    router,
		Engine:    engine,
		Verbose:   opts.Verbose,
		commands:  make(map[string]*botspec.Command, len(doc.Commands)),
		schedules: make(map[string]*botspec.Schedule, len(doc.Schedules)),
		prefix:    doc.Config.Prefix,
	}
	b.Deps = &core.Deps{
		Evaluator: ev,
		State:     mgr,
		Registry:  reg,
		Executor:  core.NewExecutor(),
		Flows:     engine,
		Router:    router,
		Client:    opts.Client,
	}

	defs := make([]*event.Definition, len(doc.Events))
	for i, e := range doc.Events {
		defs[i] = e.Definition()
	}
	if _, err := router.RegisterAll(defs); err != nil {
		b.Close()
		return nil, err
	}

	for _, c := range doc.Commands {
		b.commands[c.Name] = c
	}

	b.Scheduler = event.NewScheduler(b.fireSchedule)
	b.Scheduler.Errors = opts.Errors
	for _, s := range doc.Schedules {
		b.schedules[s.Name] = s
		if err := b.Scheduler.Add(ctx, s.Name, s.Cron); err != nil {
			b.Close()
			return nil, err
		}
	}

	b.Logf("assembled %q: %d commands, %d events, %d flows, %d schedules",
		doc.Name, len(doc.Commands), len(doc.Events), len(doc.Flows), len(doc.Schedules))
	return b, nil
}

func openStore(cfg *botspec.Config) (storage.Store, error) {
	switch cfg.Storage {
	case "", "mem":
		return mem.NewStore(), nil
	case "bolt":
		st, err := bolt.NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err = st.Open(); err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		return sqlite.NewStore(cfg.Path)
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

// Logf logs if b.Verbose.
func (b *Bot) Logf(format string, args ...interface{}) {
	if !b.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Close stops the scheduler and router timers and releases the state
// manager (which owns the store).
func (b *Bot) Close() error {
	if b.Scheduler != nil {
		b.Scheduler.Stop()
	}
	b.Router.Close()
	return b.Deps.State.Close()
}

// HandleMessage dispatches one message: a prefixed message naming a
// declared command runs that command; everything else (including a
// prefixed message naming no command, which may belong to some other
// bot) emits "message_create".
func (b *Bot) HandleMessage(ctx context.Context, actx *core.ActionContext) error {
	m := actx.Message
	if m == nil {
		return b.HandleEvent(ctx, "message_create", actx)
	}
	content := strings.TrimSpace(m.Content)
	if strings.HasPrefix(content, b.prefix) && b.prefix != "" {
		words := strings.Fields(content[len(b.prefix):])
		if 0 < len(words) {
			if c, have := b.commands[words[0]]; have {
				options, err := c.ParseArgs(words[1:])
				if err != nil {
					b.replyText(ctx, actx, err.Error())
					return nil
				}
				return b.runCommand(ctx, c, options, actx)
			}
		}
	}
	return b.HandleEvent(ctx, "message_create", actx)
}

// HandleCommand runs a declared command with raw option values (say,
// decoded from a JSON line).  Option errors are reported back to the
// invoking user, not returned.
func (b *Bot) HandleCommand(ctx context.Context, name string, raw map[string]interface{}, actx *core.ActionContext) error {
	c, have := b.commands[name]
	if !have {
		return &UnknownCommand{Name: name}
	}
	options, err := c.DecodeOptions(raw)
	if err != nil {
		b.replyText(ctx, actx, err.Error())
		return nil
	}
	return b.runCommand(ctx, c, options, actx)
}

// HandleEvent snapshots scoped state and feeds the router.
func (b *Bot) HandleEvent(ctx context.Context, name string, actx *core.ActionContext) error {
	actx.Event = name
	b.snapshot(ctx, actx)
	b.Logf("event %s", name)
	return b.Router.Emit(ctx, name, actx, b.Deps)
}

// runCommand enforces the cooldown, runs the command's actions, and
// converts any unhandled failure into the generic reply, logging the
// cause.  Raw internals never reach the end user.
func (b *Bot) runCommand(ctx context.Context, c *botspec.Command, options map[string]interface{}, actx *core.ActionContext) error {
	actx.Event = "command:" + c.Name
	actx.Options = options
	b.snapshot(ctx, actx)
	b.Logf("command %s %v", c.Name, options)

	if wait, until := b.onCooldown(c, actx); wait {
		b.replyText(ctx, actx, fmt.Sprintf("You're doing that too fast. Try again in %s.", until))
		return nil
	}

	results, err := b.Deps.Executor.ExecuteSequence(ctx, c.Actions, actx, b.Deps)
	if err != nil {
		log.Printf("command %s: %v", c.Name, err)
		b.replyText(ctx, actx, "An error occurred while running that command.")
		return nil
	}
	if 0 < len(results) {
		if r := results[len(results)-1]; !r.Success && !r.Handled && !r.Aborted() {
			log.Printf("command %s: %v", c.Name, r.Err)
			b.replyText(ctx, actx, "An error occurred while running that command.")
		}
	}
	return nil
}

// onCooldown checks and opens the command's per-user window.  The
// window lives in the state manager's process-local cache, so it costs
// no storage round trip and resets on restart.
func (b *Bot) onCooldown(c *botspec.Command, actx *core.ActionContext) (bool, time.Duration) {
	if c.CooldownWindow <= 0 {
		return false, 0
	}
	user := actx.Scope().UserID
	if user == "" {
		return false, 0
	}
	key := "cooldown:" + c.Name + ":" + user
	if v, have := b.Deps.State.CacheGet(key); have {
		until := time.Second
		if deadline, is := v.(time.Time); is {
			if d := time.Until(deadline).Round(time.Second); 0 < d {
				until = d
			}
		}
		return true, until
	}
	b.Deps.State.CacheSet(key, time.Now().Add(c.CooldownWindow), c.CooldownWindow)
	return false, 0
}

// snapshot fills actx.State for expression reads.  A snapshot failure
// is logged, not fatal: the command still runs, with an empty view.
func (b *Bot) snapshot(ctx context.Context, actx *core.ActionContext) {
	snap, err := b.Deps.State.Snapshot(ctx, actx.Scope())
	if err != nil {
		log.Printf("state snapshot: %v", err)
		return
	}
	actx.State = snap
}

// replyText sends plain text back at the trigger, best effort.
func (b *Bot) replyText(ctx context.Context, actx *core.ActionContext, text string) {
	client := b.Deps.Client
	if client == nil {
		return
	}
	sc := actx.Scope()
	var err error
	switch {
	case actx.Message != nil:
		_, err = client.Reply(ctx, sc.ChannelID, actx.Message.ID, text)
	case sc.ChannelID != "":
		_, err = client.Send(ctx, sc.ChannelID, text)
	case sc.UserID != "":
		_, err = client.SendDM(ctx, sc.UserID, text)
	}
	if err != nil {
		log.Printf("reply: %v", err)
	}
}

// fireSchedule runs one schedule's actions with a bare context.  The
// scheduler reports the returned error.
func (b *Bot) fireSchedule(ctx context.Context, name string) error {
	s, have := b.schedules[name]
	if !have {
		return fmt.Errorf("unknown schedule %q", name)
	}
	actx := &core.ActionContext{Event: "schedule:" + name}
	b.snapshot(ctx, actx)
	b.Logf("schedule %s", name)

	results, err := b.Deps.Executor.ExecuteSequence(ctx, s.Actions, actx, b.Deps)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	if 0 < len(results) {
		if r := results[len(results)-1]; !r.Success && !r.Handled && !r.Aborted() {
			return fmt.Errorf("schedule %q: %w", name, r.Err)
		}
	}
	return nil
}
