// ABOUTME: State machine for gateway control opcodes and session lifecycle dispatches
// ABOUTME: Turns Hello, Heartbeat, Ack, Reconnect, InvalidSession and Ready into outbound instructions

package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/session"
	"github.com/2389/coven-discord/internal/wire"
)

var (
	// ErrReconnect means the gateway asked for a resuming reconnect.
	ErrReconnect = errors.New("gateway requested reconnect")

	// ErrInvalidSession means the session was invalidated and has been cleared.
	ErrInvalidSession = errors.New("gateway invalidated session")
)

// Strategy selects how a new socket re-establishes the session.
type Strategy string

const (
	// StrategyResume resumes when resume data is available, else identifies.
	StrategyResume Strategy = "resume"
	// StrategyIdentify always starts a new session.
	StrategyIdentify Strategy = "identify"
)

// Heartbeater is started with the interval announced by Hello.
type Heartbeater interface {
	Start(interval time.Duration)
}

// CommandSource provides the commands that should be registered after Ready.
type CommandSource interface {
	Desired() []wire.Command
}

// DispatchRouter handles the dispatch events that are not part of the
// session lifecycle.
type DispatchRouter interface {
	Route(ctx context.Context, env *wire.Envelope) (outbound.Instruction, error)
}

// Config is what the machine needs to identify and resume.
type Config struct {
	Token         string
	Intents       int
	Properties    wire.IdentifyProperties
	ApplicationID string
	Strategy      Strategy
}

// Machine handles one envelope at a time. It is safe for concurrent use;
// everything it mutates lives in session.State.
type Machine struct {
	cfg      Config
	state    *session.State
	heart    Heartbeater
	commands CommandSource
	router   DispatchRouter
	logger   *slog.Logger
}

// New creates a machine. commands and router may be nil.
func New(cfg Config, state *session.State, heart Heartbeater, commands CommandSource, router DispatchRouter, logger *slog.Logger) *Machine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyResume
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:      cfg,
		state:    state,
		heart:    heart,
		commands: commands,
		router:   router,
		logger:   logger.With("component", "system"),
	}
}

// Observe records the envelope's sequence. The receive loop calls it for
// every frame, in arrival order, before the frame is processed.
func (m *Machine) Observe(env *wire.Envelope) {
	m.state.ObserveSequence(env.Seq)
}

// Handle processes env and returns what should be sent. ErrReconnect and
// ErrInvalidSession are signals for the orchestrator, not failures.
func (m *Machine) Handle(ctx context.Context, env *wire.Envelope) (outbound.Instruction, error) {
	switch env.Op {
	case wire.OpHello:
		return m.hello(env)

	case wire.OpHeartbeat:
		return outbound.SocketFrame{Frame: wire.HeartbeatFrame(m.state.Sequence())}, nil

	case wire.OpHeartbeatAck:
		m.state.Ack()
		return outbound.NoResponse{}, nil

	case wire.OpReconnect:
		m.logger.Info("gateway requested reconnect")
		return outbound.NoResponse{}, ErrReconnect

	case wire.OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(env.Data, &resumable)
		m.state.Clear()
		m.logger.Warn("session invalidated", "resumable", resumable)
		return outbound.NoResponse{}, ErrInvalidSession

	case wire.OpDispatch:
		return m.dispatch(ctx, env)

	default:
		m.logger.Debug("ignoring opcode", "op", env.RawOp)
		return outbound.NoResponse{}, nil
	}
}

func (m *Machine) hello(env *wire.Envelope) (outbound.Instruction, error) {
	var hello wire.Hello
	if err := wire.DecodeData(env, "hello", &hello); err != nil {
		return outbound.NoResponse{}, err
	}
	interval := hello.Interval()
	if interval <= 0 {
		return outbound.NoResponse{}, &wire.DecodeError{What: "hello", Err: fmt.Errorf("invalid heartbeat interval %d", hello.HeartbeatInterval)}
	}

	m.state.SetHeartbeatInterval(interval)
	m.heart.Start(interval)

	if m.cfg.Strategy == StrategyResume {
		if data, ok := m.state.ResumeData(); ok {
			seq := m.state.Sequence()
			m.logger.Info("resuming session", "session_id", data.SessionID, "seq", seqAttr(seq))
			return outbound.SocketFrame{Frame: wire.Frame{
				Op: wire.OpResume,
				Data: wire.Resume{
					Token:     m.cfg.Token,
					SessionID: data.SessionID,
					Seq:       seq,
				},
			}}, nil
		}
	}

	// A new session numbers its dispatches from scratch
	m.state.ResetSequence()
	m.logger.Info("identifying", "intents", m.cfg.Intents, "heartbeat_interval", interval)
	return outbound.SocketFrame{Frame: wire.Frame{
		Op: wire.OpIdentify,
		Data: wire.Identify{
			Token:      m.cfg.Token,
			Intents:    m.cfg.Intents,
			Properties: m.cfg.Properties,
		},
	}}, nil
}

func (m *Machine) dispatch(ctx context.Context, env *wire.Envelope) (outbound.Instruction, error) {
	switch env.DispatchEvent() {
	case wire.EventReady:
		return m.ready(env)
	case wire.EventResumed:
		m.logger.Info("session resumed", "seq", seqAttr(m.state.Sequence()))
		return outbound.NoResponse{}, nil
	}

	if m.router == nil {
		return outbound.NoResponse{}, nil
	}
	return m.router.Route(ctx, env)
}

func (m *Machine) ready(env *wire.Envelope) (outbound.Instruction, error) {
	var ready wire.Ready
	if err := wire.DecodeData(env, "ready", &ready); err != nil {
		return outbound.NoResponse{}, err
	}

	if err := m.state.Capture(ready.SessionID, ready.ResumeGatewayURL); err != nil {
		m.logger.Warn("ready without resume data", "error", err)
	}
	if ready.User != nil {
		m.state.SetBotUserID(ready.User.ID)
	}
	m.logger.Info("session ready", "session_id", ready.SessionID, "version", ready.Version)

	if m.commands == nil {
		return outbound.NoResponse{}, nil
	}
	desired := m.commands.Desired()
	if len(desired) == 0 {
		return outbound.NoResponse{}, nil
	}

	appID := m.cfg.ApplicationID
	if appID == "" && ready.Application != nil {
		appID = ready.Application.ID
	}
	if appID == "" {
		m.logger.Warn("no application id, skipping command reconciliation")
		return outbound.NoResponse{}, nil
	}
	return outbound.CommandReconciliation{ApplicationID: appID, Desired: desired}, nil
}

// seqAttr renders a nullable sequence for logging.
func seqAttr(seq *int64) any {
	if seq == nil {
		return nil
	}
	return *seq
}
