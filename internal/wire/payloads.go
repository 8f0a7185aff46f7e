// ABOUTME: Typed payloads for the gateway events and REST bodies the engine touches
// ABOUTME: Only the fields the session engine and built-in commands inspect are modeled

package wire

import (
	"encoding/json"
	"time"
)

// Hello is the opcode 10 payload.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Interval returns the heartbeat interval as a duration.
func (h Hello) Interval() time.Duration {
	return time.Duration(h.HeartbeatInterval) * time.Millisecond
}

// Ready is the READY dispatch payload.
type Ready struct {
	Version          int          `json:"v"`
	User             *User        `json:"user,omitempty"`
	SessionID        string       `json:"session_id"`
	ResumeGatewayURL string       `json:"resume_gateway_url"`
	Application      *Application `json:"application,omitempty"`
}

// Application is the partial application object sent with Ready.
type Application struct {
	ID string `json:"id"`
}

// Identify is the opcode 2 payload.
type Identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume is the opcode 6 payload.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       *int64 `json:"seq"`
}

// User is a gateway user object.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// MessageCreate is the MESSAGE_CREATE dispatch payload.
type MessageCreate struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	Author    *User     `json:"author,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Mentions  []User    `json:"mentions"`
}

// Member is a guild member wrapper around a user.
type Member struct {
	User *User  `json:"user,omitempty"`
	Nick string `json:"nick,omitempty"`
}

// Interaction is the INTERACTION_CREATE dispatch payload.
type Interaction struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          InteractionType `json:"type"`
	Data          *CommandData    `json:"data,omitempty"`
	GuildID       string          `json:"guild_id,omitempty"`
	ChannelID     string          `json:"channel_id,omitempty"`
	Member        *Member         `json:"member,omitempty"`
	User          *User           `json:"user,omitempty"`
	Token         string          `json:"token"`
}

// Invoker returns the user that triggered the interaction, from the member in
// guilds or the user in direct messages.
func (i *Interaction) Invoker() *User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// CommandData is the application command part of an interaction.
type CommandData struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    int           `json:"type,omitempty"`
	Options []OptionValue `json:"options,omitempty"`
}

// Option returns the named top-level option.
func (d *CommandData) Option(name string) (OptionValue, bool) {
	if d == nil {
		return OptionValue{}, false
	}
	for _, opt := range d.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return OptionValue{}, false
}

// OptionValue is one user-supplied command option.
type OptionValue struct {
	Name    string          `json:"name"`
	Type    OptionType      `json:"type"`
	Value   json.RawMessage `json:"value,omitempty"`
	Options []OptionValue   `json:"options,omitempty"`
}

// Bool decodes a boolean option value.
func (o OptionValue) Bool() (bool, bool) {
	var v bool
	if err := json.Unmarshal(o.Value, &v); err != nil {
		return false, false
	}
	return v, true
}

// Int decodes an integer option value.
func (o OptionValue) Int() (int, bool) {
	var v int
	if err := json.Unmarshal(o.Value, &v); err != nil {
		return 0, false
	}
	return v, true
}

// Text decodes a string option value.
func (o OptionValue) Text() (string, bool) {
	var v string
	if err := json.Unmarshal(o.Value, &v); err != nil {
		return "", false
	}
	return v, true
}

// InteractionResponse is the body of an interaction callback.
type InteractionResponse struct {
	Type CallbackType        `json:"type"`
	Data *InteractionMessage `json:"data,omitempty"`
}

// InteractionMessage is the message part of an interaction reply or follow-up.
type InteractionMessage struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

// ChannelMessage is the body of a channel message create call.
type ChannelMessage struct {
	Content          string            `json:"content,omitempty"`
	MessageReference *MessageReference `json:"message_reference,omitempty"`
}

// MessageReference points a reply at the message it answers.
type MessageReference struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
}

// GatewayBot is the response of GET gateway/bot.
type GatewayBot struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"`
}
