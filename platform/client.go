// Package platform isolates the chat platform behind plain data and a
// small call surface.
//
// Everything above this package works with projections (User, Message,
// and friends) and a Client.  A projection is an eager copy made at
// event arrival.  A Client turns intents like "reply" or "ban" into
// platform calls.  Swapping a real session for a Console or Recorder
// changes nothing above this line, which is what makes bot documents
// testable offline.
package platform

import (
	"context"
	"time"
)

// A Client performs writes against the chat platform.
//
// Implementations must be safe for concurrent use.  Methods that
// create a message return the new message's id.
type Client interface {
	// Send posts content to a channel.
	Send(ctx context.Context, channelID string, content string) (string, error)

	// Reply posts content to a channel as a reply to a message.
	Reply(ctx context.Context, channelID, messageID string, content string) (string, error)

	// SendDM opens (or reuses) a direct channel to the user and
	// posts content there.
	SendDM(ctx context.Context, userID string, content string) (string, error)

	// Edit replaces the content of a previously sent message.
	Edit(ctx context.Context, channelID, messageID string, content string) error

	// Delete removes a message.
	Delete(ctx context.Context, channelID, messageID string) error

	// React adds an emoji reaction to a message.
	React(ctx context.Context, channelID, messageID, emoji string) error

	// AddRole grants a role to a guild member.
	AddRole(ctx context.Context, guildID, userID, roleID string) error

	// RemoveRole revokes a role from a guild member.
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// Kick removes a member from a guild.
	Kick(ctx context.Context, guildID, userID, reason string) error

	// Ban bans a user from a guild.
	Ban(ctx context.Context, guildID, userID, reason string) error

	// Timeout mutes a member for the given duration.  A zero
	// duration clears an existing timeout.
	Timeout(ctx context.Context, guildID, userID string, d time.Duration) error
}
