package actions

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
)

func installPlatform(reg *core.Registry) {
	reg.Register(&core.Handler{Name: "reply", Validate: needFields("content"), Execute: replyAction})
	reg.Register(&core.Handler{Name: "send_message", Validate: needFields("content"), Execute: sendMessageAction})
	reg.Register(&core.Handler{Name: "send_dm", Validate: needFields("content"), Execute: sendDMAction})
	reg.Register(&core.Handler{Name: "edit_message", Validate: needFields("message", "content"), Execute: editMessageAction})
	reg.Register(&core.Handler{Name: "delete_message", Execute: deleteMessageAction})
	reg.Register(&core.Handler{Name: "react", Validate: needFields("emoji"), Execute: reactAction})
	reg.Register(&core.Handler{Name: "add_role", Validate: needFields("role"), Execute: addRoleAction})
	reg.Register(&core.Handler{Name: "remove_role", Validate: needFields("role"), Execute: removeRoleAction})
	reg.Register(&core.Handler{Name: "kick", Execute: kickAction})
	reg.Register(&core.Handler{Name: "ban", Execute: banAction})
	reg.Register(&core.Handler{Name: "timeout", Validate: needFields("duration"), Execute: timeoutAction})
	reg.Register(&core.Handler{Name: "random_reply", Validate: needFields("choices"), Execute: randomReplyAction})
}

// messageRef resolves the channel and message an action targets,
// falling back to the triggering message.
func messageRef(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (string, string, error) {
	channel, err := stringField(ctx, a, actx, deps, "channel")
	if err != nil {
		return "", "", err
	}
	if channel == "" {
		channel = actx.Scope().ChannelID
	}
	message, err := stringField(ctx, a, actx, deps, "message")
	if err != nil {
		return "", "", err
	}
	if message == "" && actx.Message != nil {
		message = actx.Message.ID
	}
	if channel == "" {
		return "", "", fmt.Errorf("%s has no channel", a.Kind)
	}
	return channel, message, nil
}

// guildUser resolves the guild and user a moderation action targets,
// falling back to the trigger's.
func guildUser(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (string, string, error) {
	guild, err := stringField(ctx, a, actx, deps, "guild")
	if err != nil {
		return "", "", err
	}
	user, err := stringField(ctx, a, actx, deps, "user")
	if err != nil {
		return "", "", err
	}
	sc := actx.Scope()
	if guild == "" {
		guild = sc.GuildID
	}
	if user == "" {
		user = sc.UserID
	}
	if guild == "" || user == "" {
		return "", "", fmt.Errorf("%s has no guild or user", a.Kind)
	}
	return guild, user, nil
}

// sendReply posts content as a reply to the target message, or as a
// plain send when there is no message to reply to.
func sendReply(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps, content string) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	channel, message, err := messageRef(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	var id string
	if message == "" {
		id, err = client.Send(ctx, channel, content)
	} else {
		id, err = client.Reply(ctx, channel, message, content)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": id}, nil
}

func replyAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	content, err := needString(ctx, a, actx, deps, "content")
	if err != nil {
		return nil, err
	}
	return sendReply(ctx, a, actx, deps, content)
}

// randomReplyAction replies with a uniform choice from "choices".
func randomReplyAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	v, err := field(ctx, a, actx, deps, "choices")
	if err != nil {
		return nil, err
	}
	choices, is := v.([]interface{})
	if !is || len(choices) == 0 {
		return nil, fmt.Errorf("random_reply %q is not a non-empty array", "choices")
	}
	content := fmt.Sprintf("%v", choices[rand.Intn(len(choices))])
	return sendReply(ctx, a, actx, deps, content)
}

func sendMessageAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	content, err := needString(ctx, a, actx, deps, "content")
	if err != nil {
		return nil, err
	}
	channel, err := stringField(ctx, a, actx, deps, "channel")
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = actx.Scope().ChannelID
	}
	if channel == "" {
		return nil, fmt.Errorf("send_message has no channel")
	}
	id, err := client.Send(ctx, channel, content)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": id}, nil
}

func sendDMAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	content, err := needString(ctx, a, actx, deps, "content")
	if err != nil {
		return nil, err
	}
	user, err := stringField(ctx, a, actx, deps, "user")
	if err != nil {
		return nil, err
	}
	if user == "" {
		user = actx.Scope().UserID
	}
	if user == "" {
		return nil, fmt.Errorf("send_dm has no user")
	}
	id, err := client.SendDM(ctx, user, content)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": id}, nil
}

func editMessageAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	content, err := needString(ctx, a, actx, deps, "content")
	if err != nil {
		return nil, err
	}
	channel, message, err := messageRef(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	return nil, client.Edit(ctx, channel, message, content)
}

func deleteMessageAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	channel, message, err := messageRef(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	if message == "" {
		return nil, fmt.Errorf("delete_message has no message")
	}
	return nil, client.Delete(ctx, channel, message)
}

func reactAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	emoji, err := needString(ctx, a, actx, deps, "emoji")
	if err != nil {
		return nil, err
	}
	channel, message, err := messageRef(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	if message == "" {
		return nil, fmt.Errorf("react has no message")
	}
	return nil, client.React(ctx, channel, message, emoji)
}

func addRoleAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	role, err := needString(ctx, a, actx, deps, "role")
	if err != nil {
		return nil, err
	}
	guild, user, err := guildUser(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	return nil, client.AddRole(ctx, guild, user, role)
}

func removeRoleAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	role, err := needString(ctx, a, actx, deps, "role")
	if err != nil {
		return nil, err
	}
	guild, user, err := guildUser(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	return nil, client.RemoveRole(ctx, guild, user, role)
}

func kickAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	guild, user, err := guildUser(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	reason, err := stringField(ctx, a, actx, deps, "reason")
	if err != nil {
		return nil, err
	}
	return nil, client.Kick(ctx, guild, user, reason)
}

func banAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	guild, user, err := guildUser(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	reason, err := stringField(ctx, a, actx, deps, "reason")
	if err != nil {
		return nil, err
	}
	return nil, client.Ban(ctx, guild, user, reason)
}

func timeoutAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	client, err := needClient(deps)
	if err != nil {
		return nil, err
	}
	raw, err := field(ctx, a, actx, deps, "duration")
	if err != nil {
		return nil, err
	}
	d, err := expr.ParseDuration(raw)
	if err != nil {
		return nil, err
	}
	guild, user, err := guildUser(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}
	return nil, client.Timeout(ctx, guild, user, d)
}
