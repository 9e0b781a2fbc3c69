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

package platform

import "time"

// A User is a plain snapshot of a chat platform user.
//
// Projections are copies made when an event arrives, not live views
// into the platform session.  Handlers and expressions can read them
// without touching the network, and nothing they do to a projection is
// visible anywhere else.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// A Member is a User plus the guild-scoped trimmings.
type Member struct {
	User     *User      `json:"user,omitempty"`
	Nick     string     `json:"nick,omitempty"`
	Roles    []string   `json:"roles,omitempty"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
	// Permissions is the member's effective permission set, as
	// lower-case strings ("ban_members", "manage_channels", ...).
	Permissions []string `json:"permissions,omitempty"`
}

// HasRole reports whether the member carries the given role id.
func (m *Member) HasRole(id string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// A Guild is a snapshot of the server an event occurred in.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"ownerId,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
	IconURL     string `json:"iconUrl,omitempty"`
}

// A Channel is a snapshot of the channel an event occurred in.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Topic    string `json:"topic,omitempty"`
	GuildID  string `json:"guildId,omitempty"`
	NSFW     bool   `json:"nsfw,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// A Role is one guild role, as carried by role events.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color,omitempty"`
	Position int    `json:"position,omitempty"`
}

// An Attachment is one file hung off a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// A Message is a snapshot of a chat message.
type Message struct {
	ID          string        `json:"id"`
	ChannelID   string        `json:"channelId"`
	GuildID     string        `json:"guildId,omitempty"`
	Author      *User         `json:"author,omitempty"`
	Content     string        `json:"content"`
	Timestamp   *time.Time    `json:"timestamp,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`
	Mentions    []*User       `json:"mentions,omitempty"`
	// ReferencedID is the id of the message this one replies to.
	ReferencedID string `json:"referencedId,omitempty"`
}

// A Reaction is carried by reaction_add and reaction_remove events.
type Reaction struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

// An Interaction is a snapshot of a slash-command (or component)
// invocation.  Options holds the already-decoded argument values keyed
// by option name.
type Interaction struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type,omitempty"`
	Command   string                 `json:"command,omitempty"`
	CustomID  string                 `json:"customId,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
	GuildID   string                 `json:"guildId,omitempty"`
}
