// ABOUTME: Tests for the interaction deadline race
// ABOUTME: Fast handlers answer the callback directly; slow ones get a placeholder and a follow-up

package interaction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/wire"
)

type handlerFunc func(ctx context.Context, in *wire.Interaction) *wire.InteractionResponse

func (f handlerFunc) Invoke(ctx context.Context, in *wire.Interaction) *wire.InteractionResponse {
	return f(ctx, in)
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []outbound.Instruction
	at        []time.Time
}

func (d *recordingDeliverer) Deliver(_ context.Context, in outbound.Instruction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, in)
	d.at = append(d.at, time.Now())
	return nil
}

func (d *recordingDeliverer) all() []outbound.Instruction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]outbound.Instruction(nil), d.delivered...)
}

func sleepingHandler(d time.Duration, content string) Handler {
	return handlerFunc(func(ctx context.Context, _ *wire.Interaction) *wire.InteractionResponse {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
		return &wire.InteractionResponse{
			Type: wire.CallbackChannelMessage,
			Data: &wire.InteractionMessage{Content: content, Flags: wire.FlagEphemeral},
		}
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func command(name string) *wire.Interaction {
	return &wire.Interaction{
		ID:            "int-1",
		ApplicationID: "app-1",
		Type:          wire.InteractionCommand,
		Token:         "tok-1",
		Data:          &wire.CommandData{Name: name},
	}
}

func TestRoute_FastHandlerUsesCallback(t *testing.T) {
	deliver := &recordingDeliverer{}
	r := New(Config{}, sleepingHandler(100*time.Millisecond, "pong"), deliver, nil, quietLogger())

	in, err := r.Route(context.Background(), command("ping"))
	require.NoError(t, err)

	call, ok := in.(outbound.WebhookCall)
	require.True(t, ok, "expected callback, got %T", in)
	assert.Equal(t, outbound.KindInteractionCallback, call.Kind)
	assert.Equal(t, "int-1", call.InteractionID)
	assert.Equal(t, "tok-1", call.Token)
	resp := call.Body.(*wire.InteractionResponse)
	assert.Equal(t, "pong", resp.Data.Content)

	// No placeholder was needed
	assert.Empty(t, deliver.all())
}

func TestRoute_SlowHandlerGetsPlaceholderThenFollowUp(t *testing.T) {
	deliver := &recordingDeliverer{}
	// Scaled down: 3000ms handler against a 2200ms deadline
	r := New(Config{Deadline: 110 * time.Millisecond, Placeholder: "hold on"},
		sleepingHandler(150*time.Millisecond, "done"), deliver, nil, quietLogger())

	start := time.Now()
	in, err := r.Route(context.Background(), command("http-cat"))
	require.NoError(t, err)

	// Placeholder went out synchronously on the callback route, at the deadline
	sent := deliver.all()
	require.Len(t, sent, 1)
	placeholder, ok := sent[0].(outbound.WebhookCall)
	require.True(t, ok)
	assert.Equal(t, outbound.KindInteractionCallback, placeholder.Kind)
	assert.Equal(t, "hold on", placeholder.Body.(*wire.InteractionResponse).Data.Content)
	assert.GreaterOrEqual(t, deliver.at[0].Sub(start), 110*time.Millisecond)

	// The final result is a follow-up with only the message data
	call, ok := in.(outbound.WebhookCall)
	require.True(t, ok, "expected follow-up, got %T", in)
	assert.Equal(t, outbound.KindFollowUp, call.Kind)
	assert.Equal(t, "app-1", call.ApplicationID)
	assert.Equal(t, "tok-1", call.Token)
	msg, ok := call.Body.(*wire.InteractionMessage)
	require.True(t, ok)
	assert.Equal(t, "done", msg.Content)
	assert.Equal(t, wire.FlagEphemeral, msg.Flags)
}

func TestRoute_FollowUpFallsBackToConfiguredApplication(t *testing.T) {
	deliver := &recordingDeliverer{}
	r := New(Config{Deadline: 10 * time.Millisecond, ApplicationID: "app-cfg"},
		sleepingHandler(40*time.Millisecond, "done"), deliver, nil, quietLogger())

	in := command("ping")
	in.ApplicationID = ""
	out, err := r.Route(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "app-cfg", out.(outbound.WebhookCall).ApplicationID)
}

func TestRoute_PanicBecomesErrorReply(t *testing.T) {
	boom := handlerFunc(func(context.Context, *wire.Interaction) *wire.InteractionResponse {
		panic("kaboom")
	})
	r := New(Config{}, boom, &recordingDeliverer{}, nil, quietLogger())

	in, err := r.Route(context.Background(), command("error"))
	require.NoError(t, err)
	resp := in.(outbound.WebhookCall).Body.(*wire.InteractionResponse)
	assert.Equal(t, panicMessage, resp.Data.Content)
	assert.Equal(t, wire.FlagEphemeral, resp.Data.Flags)
}

func TestRoute_NilResponse(t *testing.T) {
	none := handlerFunc(func(context.Context, *wire.Interaction) *wire.InteractionResponse { return nil })
	r := New(Config{}, none, &recordingDeliverer{}, nil, quietLogger())

	in, err := r.Route(context.Background(), command("ping"))
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestRoute_NonCommandTypes(t *testing.T) {
	called := false
	h := handlerFunc(func(context.Context, *wire.Interaction) *wire.InteractionResponse {
		called = true
		return nil
	})
	r := New(Config{}, h, &recordingDeliverer{}, nil, quietLogger())

	for _, typ := range []wire.InteractionType{wire.InteractionPing, wire.InteractionComponent, wire.InteractionType(42)} {
		in := command("ping")
		in.Type = typ
		out, err := r.Route(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, outbound.NoResponse{}, out)
	}
	assert.False(t, called)
}

func TestRoute_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := handlerFunc(func(context.Context, *wire.Interaction) *wire.InteractionResponse {
		<-release
		return nil
	})
	r := New(Config{}, stuck, &recordingDeliverer{}, nil, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Route(ctx, command("ping"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
