// ABOUTME: Tests for dispatch routing and mention-trigger matching
// ABOUTME: Uses the literal mention scenarios plus replay suppression and interaction delegation

package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-discord/internal/dedupe"
	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/wire"
)

type botID string

func (b botID) BotUserID() string { return string(b) }

type fakeInteractions struct {
	got []*wire.Interaction
}

func (f *fakeInteractions) Route(_ context.Context, in *wire.Interaction) (outbound.Instruction, error) {
	f.got = append(f.got, in)
	return outbound.Callback(in.ID, in.Token, &wire.InteractionResponse{Type: wire.CallbackPong}), nil
}

func newRouter(seen *dedupe.Window) (*Router, *fakeInteractions) {
	fi := &fakeInteractions{}
	r := New(Config{}, botID("123"), fi, seen, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, fi
}

func messageEnvelope(t *testing.T, id, content string, mentions ...string) *wire.Envelope {
	t.Helper()
	users := make([]map[string]string, 0, len(mentions))
	for _, m := range mentions {
		users = append(users, map[string]string{"id": m})
	}
	d := map[string]any{
		"id":         id,
		"channel_id": "chan-1",
		"guild_id":   "guild-1",
		"author":     map[string]string{"id": "999"},
		"content":    content,
		"mentions":   users,
	}
	raw, err := json.Marshal(map[string]any{"op": 0, "s": 1, "t": "MESSAGE_CREATE", "d": d})
	require.NoError(t, err)
	env, err := wire.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestMatchTrigger(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"<@123> ping", true},
		{"<@123>   ping", true},
		{"<@123>\tping", true},
		{"<@123>ping", true},
		{"<@123> pingx", false},
		{"<@123> ping ", false},
		{"<@123> Ping", false},
		{"ping", false},
		{"<@123", false},
		{"hey <@123> ping", true},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTrigger(tc.content, "ping"), "content %q", tc.content)
	}
	assert.False(t, MatchTrigger("<@1> ", ""))
}

func TestMessageCreate_LiteralScenarios(t *testing.T) {
	r, _ := newRouter(nil)
	ctx := context.Background()

	// Single mention of the bot with the trigger word
	in, err := r.Route(ctx, messageEnvelope(t, "m1", "<@123> ping", "123"))
	require.NoError(t, err)
	call, ok := in.(outbound.WebhookCall)
	require.True(t, ok, "expected reply, got %T", in)
	assert.Equal(t, outbound.KindChannelMessage, call.Kind)
	assert.Equal(t, "chan-1", call.ChannelID)
	msg := call.Body.(*wire.ChannelMessage)
	assert.Equal(t, "pong", msg.Content)
	assert.Equal(t, &wire.MessageReference{MessageID: "m1", ChannelID: "chan-1", GuildID: "guild-1"}, msg.MessageReference)

	// Extra whitespace is tolerated
	in, err = r.Route(ctx, messageEnvelope(t, "m2", "<@123>   ping", "123"))
	require.NoError(t, err)
	assert.IsType(t, outbound.WebhookCall{}, in)

	// Anything after the trigger word fails the match
	in, err = r.Route(ctx, messageEnvelope(t, "m3", "<@123> pingx", "123"))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)

	// Two mentions never reply
	in, err = r.Route(ctx, messageEnvelope(t, "m4", "<@123> ping", "123", "456"))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestMessageCreate_MentionMustBeBot(t *testing.T) {
	r, _ := newRouter(nil)

	in, err := r.Route(context.Background(), messageEnvelope(t, "m1", "<@456> ping", "456"))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestMessageCreate_UnknownIdentity(t *testing.T) {
	r := New(Config{}, botID(""), nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	in, err := r.Route(context.Background(), messageEnvelope(t, "m1", "<@> ping", ""))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestMessageCreate_CustomTrigger(t *testing.T) {
	r := New(Config{Trigger: "status", Reply: "all good"}, botID("123"), nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	in, err := r.Route(context.Background(), messageEnvelope(t, "m1", "<@123> status", "123"))
	require.NoError(t, err)
	call := in.(outbound.WebhookCall)
	assert.Equal(t, "all good", call.Body.(*wire.ChannelMessage).Content)
}

func TestMessageCreate_ReplayDropped(t *testing.T) {
	r, _ := newRouter(dedupe.New(time.Minute, 100))
	ctx := context.Background()

	in, err := r.Route(ctx, messageEnvelope(t, "m1", "<@123> ping", "123"))
	require.NoError(t, err)
	assert.IsType(t, outbound.WebhookCall{}, in)

	in, err = r.Route(ctx, messageEnvelope(t, "m1", "<@123> ping", "123"))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestMessageCreate_Malformed(t *testing.T) {
	r, _ := newRouter(nil)
	env, err := wire.Decode([]byte(`{"op":0,"s":1,"t":"MESSAGE_CREATE","d":"oops"}`))
	require.NoError(t, err)

	_, err = r.Route(context.Background(), env)
	var derr *wire.DecodeError
	assert.ErrorAs(t, err, &derr)
}

func TestInteractionCreate_Delegates(t *testing.T) {
	r, fi := newRouter(dedupe.New(time.Minute, 100))
	env, err := wire.Decode([]byte(`{"op":0,"s":2,"t":"interaction_create","d":{"id":"i1","token":"tok","type":2,"data":{"name":"ping"}}}`))
	require.NoError(t, err)

	in, err := r.Route(context.Background(), env)
	require.NoError(t, err)
	assert.IsType(t, outbound.WebhookCall{}, in)
	require.Len(t, fi.got, 1)
	assert.Equal(t, "ping", fi.got[0].Data.Name)

	// Replay of the same interaction is not routed again
	in, err = r.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
	assert.Len(t, fi.got, 1)
}

func TestUnknownEvent_NoResponse(t *testing.T) {
	r, _ := newRouter(nil)
	env, err := wire.Decode([]byte(`{"op":0,"s":3,"t":"GUILD_CREATE","d":{}}`))
	require.NoError(t, err)

	in, err := r.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}
