// ABOUTME: Tests for the control opcode state machine
// ABOUTME: Covers identify versus resume, acks, reconnect signals, invalid sessions and Ready capture

package system

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/session"
	"github.com/2389/coven-discord/internal/wire"
)

type fakeHeart struct {
	mu        sync.Mutex
	intervals []time.Duration
}

func (h *fakeHeart) Start(interval time.Duration) {
	h.mu.Lock()
	h.intervals = append(h.intervals, interval)
	h.mu.Unlock()
}

type staticCommands []wire.Command

func (c staticCommands) Desired() []wire.Command { return c }

type recordingRouter struct {
	events []string
}

func (r *recordingRouter) Route(_ context.Context, env *wire.Envelope) (outbound.Instruction, error) {
	r.events = append(r.events, env.Event)
	return outbound.ChannelMessage("c", &wire.ChannelMessage{Content: "routed"}), nil
}

type fixture struct {
	machine *Machine
	state   *session.State
	heart   *fakeHeart
	router  *recordingRouter
}

func newFixture(strategy Strategy, cmds staticCommands) *fixture {
	f := &fixture{
		state:  session.New(),
		heart:  &fakeHeart{},
		router: &recordingRouter{},
	}
	cfg := Config{
		Token:         "bot-token",
		Intents:       wire.IntentGuildMessages | wire.IntentMessageContent,
		Properties:    wire.IdentifyProperties{OS: "linux", Browser: "coven", Device: "coven"},
		ApplicationID: "app-1",
		Strategy:      strategy,
	}
	f.machine = New(cfg, f.state, f.heart, cmds, f.router, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func envelope(t *testing.T, raw string) *wire.Envelope {
	t.Helper()
	env, err := wire.Decode([]byte(raw))
	require.NoError(t, err)
	return env
}

// process runs a frame through the machine the way the receive loop does.
func (f *fixture) process(t *testing.T, raw string) (outbound.Instruction, error) {
	t.Helper()
	env := envelope(t, raw)
	f.machine.Observe(env)
	return f.machine.Handle(context.Background(), env)
}

func frameOf(t *testing.T, in outbound.Instruction) wire.Frame {
	t.Helper()
	sf, ok := in.(outbound.SocketFrame)
	require.True(t, ok, "expected SocketFrame, got %T", in)
	return sf.Frame
}

func TestHello_IdentifiesWithoutResumeData(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	in, err := f.process(t, `{"op":10,"d":{"heartbeat_interval":41250}}`)
	require.NoError(t, err)

	frame := frameOf(t, in)
	assert.Equal(t, wire.OpIdentify, frame.Op)
	identify, ok := frame.Data.(wire.Identify)
	require.True(t, ok)
	assert.Equal(t, "bot-token", identify.Token)
	assert.Equal(t, 33280, identify.Intents)

	// Heartbeat scheduler started with the announced interval
	assert.Equal(t, []time.Duration{41250 * time.Millisecond}, f.heart.intervals)
	assert.Equal(t, 41250*time.Millisecond, f.state.HeartbeatInterval())
}

func TestHello_ResumesWhenSessionCaptured(t *testing.T) {
	f := newFixture(StrategyResume, nil)
	require.NoError(t, f.state.Capture("sess-1", "wss://resume.example"))
	_, err := f.process(t, `{"op":0,"s":42,"t":"MESSAGE_CREATE","d":{}}`)
	require.NoError(t, err)

	in, err := f.process(t, `{"op":10,"d":{"heartbeat_interval":1000}}`)
	require.NoError(t, err)

	frame := frameOf(t, in)
	assert.Equal(t, wire.OpResume, frame.Op)
	resume, ok := frame.Data.(wire.Resume)
	require.True(t, ok)
	assert.Equal(t, "sess-1", resume.SessionID)
	require.NotNil(t, resume.Seq)
	assert.Equal(t, int64(42), *resume.Seq)

	data, err := wire.Encode(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":6,"s":null,"t":null,"d":{"token":"bot-token","session_id":"sess-1","seq":42}}`, string(data))
}

func TestHello_IdentifyStrategyIgnoresResumeData(t *testing.T) {
	f := newFixture(StrategyIdentify, nil)
	require.NoError(t, f.state.Capture("sess-1", "wss://resume.example"))
	f.state.ObserveSequence(ptr(9))

	in, err := f.process(t, `{"op":10,"d":{"heartbeat_interval":1000}}`)
	require.NoError(t, err)

	assert.Equal(t, wire.OpIdentify, frameOf(t, in).Op)
	assert.Nil(t, f.state.Sequence(), "a new session starts its sequence over")
}

func TestHello_InvalidPayload(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	_, err := f.process(t, `{"op":10,"d":null}`)
	var derr *wire.DecodeError
	assert.ErrorAs(t, err, &derr)

	_, err = f.process(t, `{"op":10,"d":{"heartbeat_interval":0}}`)
	assert.ErrorAs(t, err, &derr)
	assert.Empty(t, f.heart.intervals)
}

func TestHeartbeatRequest_EchoesSequence(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	in, err := f.process(t, `{"op":1,"s":null,"d":null}`)
	require.NoError(t, err)
	frame := frameOf(t, in)
	assert.Equal(t, wire.OpHeartbeat, frame.Op)
	assert.Nil(t, frame.Data)

	_, _ = f.process(t, `{"op":0,"s":3,"t":"TYPING_START","d":{}}`)
	in, err = f.process(t, `{"op":1,"d":null}`)
	require.NoError(t, err)
	seq, ok := frameOf(t, in).Data.(*int64)
	require.True(t, ok)
	assert.Equal(t, int64(3), *seq)
}

func TestHeartbeatAck_ClearsPending(t *testing.T) {
	f := newFixture(StrategyResume, nil)
	f.state.BeginHeartbeat()
	require.True(t, f.state.Snapshot().AckPending)

	in, err := f.process(t, `{"op":11}`)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
	assert.False(t, f.state.Snapshot().AckPending)
}

func TestReconnect_Signals(t *testing.T) {
	f := newFixture(StrategyResume, nil)
	require.NoError(t, f.state.Capture("sess-1", "wss://resume.example"))

	_, err := f.process(t, `{"op":7,"d":null}`)
	assert.ErrorIs(t, err, ErrReconnect)

	// Resume data survives a reconnect request
	_, ok := f.state.ResumeData()
	assert.True(t, ok)
}

func TestInvalidSession_ClearsState(t *testing.T) {
	for _, d := range []string{"false", "true"} {
		f := newFixture(StrategyResume, nil)
		require.NoError(t, f.state.Capture("sess-1", "wss://resume.example"))
		f.state.ObserveSequence(ptr(77))

		_, err := f.process(t, `{"op":9,"d":`+d+`}`)
		assert.ErrorIs(t, err, ErrInvalidSession)

		_, ok := f.state.ResumeData()
		assert.False(t, ok, "d=%s", d)
		assert.Nil(t, f.state.Sequence(), "d=%s", d)

		// The next Hello identifies
		in, err := f.process(t, `{"op":10,"d":{"heartbeat_interval":1000}}`)
		require.NoError(t, err)
		assert.Equal(t, wire.OpIdentify, frameOf(t, in).Op)
	}
}

func TestReady_CapturesAndReconciles(t *testing.T) {
	cmds := staticCommands{{Name: "ping", Description: "Pong!"}}
	f := newFixture(StrategyResume, cmds)

	ready := map[string]any{
		"v":                  10,
		"session_id":         "sess-9",
		"resume_gateway_url": "wss://resume-9.example",
		"user":               map[string]any{"id": "123", "username": "coven"},
	}
	payload, err := json.Marshal(map[string]any{"op": 0, "s": 1, "t": "READY", "d": ready})
	require.NoError(t, err)

	in, err := f.process(t, string(payload))
	require.NoError(t, err)

	rec, ok := in.(outbound.CommandReconciliation)
	require.True(t, ok, "expected reconciliation, got %T", in)
	assert.Equal(t, "app-1", rec.ApplicationID)
	assert.Equal(t, []wire.Command(cmds), rec.Desired)

	data, ok := f.state.ResumeData()
	require.True(t, ok)
	assert.Equal(t, session.ResumeData{SessionID: "sess-9", URL: "wss://resume-9.example"}, data)
	assert.Equal(t, "123", f.state.BotUserID())
	assert.Equal(t, int64(1), *f.state.Sequence())
}

func TestReady_ApplicationIDFromPayload(t *testing.T) {
	f := newFixture(StrategyResume, staticCommands{{Name: "ping"}})
	f.machine.cfg.ApplicationID = ""

	in, err := f.process(t, `{"op":0,"s":1,"t":"READY","d":{"session_id":"s","resume_gateway_url":"wss://r","application":{"id":"app-from-ready"}}}`)
	require.NoError(t, err)
	rec, ok := in.(outbound.CommandReconciliation)
	require.True(t, ok)
	assert.Equal(t, "app-from-ready", rec.ApplicationID)
}

func TestReady_NoCommandsNoResponse(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	in, err := f.process(t, `{"op":0,"s":1,"t":"READY","d":{"session_id":"s","resume_gateway_url":"wss://r"}}`)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
}

func TestDispatch_DelegatesOtherEvents(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	in, err := f.process(t, `{"op":0,"s":5,"t":"MESSAGE_CREATE","d":{}}`)
	require.NoError(t, err)
	assert.IsType(t, outbound.WebhookCall{}, in)
	assert.Equal(t, []string{"MESSAGE_CREATE"}, f.router.events)

	in, err = f.process(t, `{"op":0,"s":6,"t":"RESUMED","d":{}}`)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)
	assert.Len(t, f.router.events, 1)
}

func TestUnknownOpcode_NoResponse(t *testing.T) {
	f := newFixture(StrategyResume, nil)

	in, err := f.process(t, `{"op":42,"s":8,"d":{}}`)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoResponse{}, in)

	// The sequence is still recorded
	assert.Equal(t, int64(8), *f.state.Sequence())
}

func TestObserve_SequenceAcrossOpcodes(t *testing.T) {
	f := newFixture(StrategyResume, nil)
	frames := []string{
		`{"op":10,"s":null,"d":{"heartbeat_interval":1000}}`,
		`{"op":0,"s":1,"t":"GUILD_CREATE","d":{}}`,
		`{"op":11,"s":null}`,
		`{"op":0,"s":2,"t":"TYPING_START","d":{}}`,
		`{"op":1,"s":null,"d":null}`,
		`{"op":99,"s":null}`,
	}
	for _, raw := range frames {
		_, _ = f.process(t, raw)
	}

	require.NotNil(t, f.state.Sequence())
	assert.Equal(t, int64(2), *f.state.Sequence())
}

func ptr(v int64) *int64 { return &v }
