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

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// A Console is a Client that writes each platform call as one JSON
// line.  It's what cmd/rigsh talks to when you drive a bot from a
// terminal or a chat transcript file.
type Console struct {
	sync.Mutex
	enc *json.Encoder
	n   int
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		enc: json.NewEncoder(w),
	}
}

func (c *Console) emit(call string, fields map[string]interface{}) (string, error) {
	c.Lock()
	defer c.Unlock()
	c.n++
	id := fmt.Sprintf("console-%d", c.n)
	line := map[string]interface{}{
		"call": call,
		"id":   id,
	}
	for k, v := range fields {
		line[k] = v
	}
	return id, c.enc.Encode(line)
}

func (c *Console) Send(ctx context.Context, channelID string, content string) (string, error) {
	return c.emit("send", map[string]interface{}{
		"channel": channelID,
		"content": content,
	})
}

func (c *Console) Reply(ctx context.Context, channelID, messageID string, content string) (string, error) {
	return c.emit("reply", map[string]interface{}{
		"channel": channelID,
		"to":      messageID,
		"content": content,
	})
}

func (c *Console) SendDM(ctx context.Context, userID string, content string) (string, error) {
	return c.emit("dm", map[string]interface{}{
		"user":    userID,
		"content": content,
	})
}

func (c *Console) Edit(ctx context.Context, channelID, messageID string, content string) error {
	_, err := c.emit("edit", map[string]interface{}{
		"channel": channelID,
		"message": messageID,
		"content": content,
	})
	return err
}

func (c *Console) Delete(ctx context.Context, channelID, messageID string) error {
	_, err := c.emit("delete", map[string]interface{}{
		"channel": channelID,
		"message": messageID,
	})
	return err
}

func (c *Console) React(ctx context.Context, channelID, messageID, emoji string) error {
	_, err := c.emit("react", map[string]interface{}{
		"channel": channelID,
		"message": messageID,
		"emoji":   emoji,
	})
	return err
}

func (c *Console) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := c.emit("add_role", map[string]interface{}{
		"guild": guildID,
		"user":  userID,
		"role":  roleID,
	})
	return err
}

func (c *Console) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := c.emit("remove_role", map[string]interface{}{
		"guild": guildID,
		"user":  userID,
		"role":  roleID,
	})
	return err
}

func (c *Console) Kick(ctx context.Context, guildID, userID, reason string) error {
	_, err := c.emit("kick", map[string]interface{}{
		"guild":  guildID,
		"user":   userID,
		"reason": reason,
	})
	return err
}

func (c *Console) Ban(ctx context.Context, guildID, userID, reason string) error {
	_, err := c.emit("ban", map[string]interface{}{
		"guild":  guildID,
		"user":   userID,
		"reason": reason,
	})
	return err
}

func (c *Console) Timeout(ctx context.Context, guildID, userID string, d time.Duration) error {
	_, err := c.emit("timeout", map[string]interface{}{
		"guild": guildID,
		"user":  userID,
		"for":   d.String(),
	})
	return err
}
