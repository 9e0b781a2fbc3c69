package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// A Call is one recorded platform write.
type Call struct {
	Method string
	Args   map[string]interface{}
}

// A Recorder is a Client that just remembers what was asked of it.
// Tests use it to check that a handler did (or didn't) hit the
// platform.
type Recorder struct {
	sync.Mutex
	calls []Call
	n     int

	// Fail, if non-nil, is returned by every call.  Handy for
	// exercising error paths.
	Fail error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.Lock()
	defer r.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent call, or nil.
func (r *Recorder) Last() *Call {
	r.Lock()
	defer r.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	c := r.calls[len(r.calls)-1]
	return &c
}

func (r *Recorder) record(method string, args map[string]interface{}) (string, error) {
	r.Lock()
	defer r.Unlock()
	if r.Fail != nil {
		return "", r.Fail
	}
	r.n++
	r.calls = append(r.calls, Call{Method: method, Args: args})
	return fmt.Sprintf("rec-%d", r.n), nil
}

func (r *Recorder) Send(ctx context.Context, channelID string, content string) (string, error) {
	return r.record("send", map[string]interface{}{"channel": channelID, "content": content})
}

func (r *Recorder) Reply(ctx context.Context, channelID, messageID string, content string) (string, error) {
	return r.record("reply", map[string]interface{}{"channel": channelID, "to": messageID, "content": content})
}

func (r *Recorder) SendDM(ctx context.Context, userID string, content string) (string, error) {
	return r.record("dm", map[string]interface{}{"user": userID, "content": content})
}

func (r *Recorder) Edit(ctx context.Context, channelID, messageID string, content string) error {
	_, err := r.record("edit", map[string]interface{}{"channel": channelID, "message": messageID, "content": content})
	return err
}

func (r *Recorder) Delete(ctx context.Context, channelID, messageID string) error {
	_, err := r.record("delete", map[string]interface{}{"channel": channelID, "message": messageID})
	return err
}

func (r *Recorder) React(ctx context.Context, channelID, messageID, emoji string) error {
	_, err := r.record("react", map[string]interface{}{"channel": channelID, "message": messageID, "emoji": emoji})
	return err
}

func (r *Recorder) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := r.record("add_role", map[string]interface{}{"guild": guildID, "user": userID, "role": roleID})
	return err
}

func (r *Recorder) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := r.record("remove_role", map[string]interface{}{"guild": guildID, "user": userID, "role": roleID})
	return err
}

func (r *Recorder) Kick(ctx context.Context, guildID, userID, reason string) error {
	_, err := r.record("kick", map[string]interface{}{"guild": guildID, "user": userID, "reason": reason})
	return err
}

func (r *Recorder) Ban(ctx context.Context, guildID, userID, reason string) error {
	_, err := r.record("ban", map[string]interface{}{"guild": guildID, "user": userID, "reason": reason})
	return err
}

func (r *Recorder) Timeout(ctx context.Context, guildID, userID string, d time.Duration) error {
	_, err := r.record("timeout", map[string]interface{}{"guild": guildID, "user": userID, "for": d.String()})
	return err
}
