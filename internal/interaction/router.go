// ABOUTME: Routes interactions to the command handler under a response deadline
// ABOUTME: Sends a placeholder when the handler is slow and delivers the result as a follow-up

package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/2389/coven-discord/internal/metrics"
	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/wire"
)

const (
	// DefaultDeadline leaves headroom under the platform's three second
	// callback window.
	DefaultDeadline = 2200 * time.Millisecond

	DefaultPlaceholder = "Give me a second, still thinking..."

	panicMessage = "Something went wrong while running that command."
)

// Handler computes the reply to an application command. Implementations
// should return an error response rather than nil when they fail.
type Handler interface {
	Invoke(ctx context.Context, in *wire.Interaction) *wire.InteractionResponse
}

// Deliverer sends an instruction immediately. Used for the placeholder.
type Deliverer interface {
	Deliver(ctx context.Context, in outbound.Instruction) error
}

// Pending is the addressing information of an interaction awaiting its reply.
type Pending struct {
	ID            string
	Token         string
	ApplicationID string
}

// Config controls the deadline race.
type Config struct {
	Deadline    time.Duration
	Placeholder string

	// ApplicationID is used for follow-ups when the interaction lacks one.
	ApplicationID string
}

// Router answers interactions. It is safe for concurrent use.
type Router struct {
	cfg     Config
	handler Handler
	deliver Deliverer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a router. m may be nil.
func New(cfg Config, handler Handler, deliver Deliverer, m *metrics.Metrics, logger *slog.Logger) *Router {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultPlaceholder
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		handler: handler,
		deliver: deliver,
		metrics: m,
		logger:  logger.With("component", "interaction"),
	}
}

// Route handles one interaction. Only application commands produce a reply.
func (r *Router) Route(ctx context.Context, in *wire.Interaction) (outbound.Instruction, error) {
	switch in.Type {
	case wire.InteractionCommand:
		return r.command(ctx, in)
	case wire.InteractionPing:
		return outbound.NoResponse{}, nil
	default:
		r.logger.Debug("ignoring interaction type", "type", int(in.Type), "interaction_id", in.ID)
		return outbound.NoResponse{}, nil
	}
}

func (r *Router) pending(in *wire.Interaction) Pending {
	p := Pending{ID: in.ID, Token: in.Token, ApplicationID: in.ApplicationID}
	if p.ApplicationID == "" {
		p.ApplicationID = r.cfg.ApplicationID
	}
	return p
}

// command races the handler against the deadline. When the handler wins its
// response is the interaction callback. When the deadline wins a placeholder
// takes the callback and the handler's message is returned as a follow-up.
func (r *Router) command(ctx context.Context, in *wire.Interaction) (outbound.Instruction, error) {
	p := r.pending(in)
	name := ""
	if in.Data != nil {
		name = in.Data.Name
	}
	logger := r.logger.With("interaction_id", p.ID, "command", name)

	results := make(chan *wire.InteractionResponse, 1)
	go func() {
		results <- r.invoke(ctx, in, logger)
	}()

	timer := time.NewTimer(r.cfg.Deadline)
	defer timer.Stop()

	select {
	case resp := <-results:
		if resp == nil {
			return outbound.NoResponse{}, nil
		}
		return outbound.Callback(p.ID, p.Token, resp), nil

	case <-timer.C:
		r.metrics.DeadlineMissed()
		logger.Info("handler missed deadline, sending placeholder", "deadline", r.cfg.Deadline)

		placeholder := &wire.InteractionResponse{
			Type: wire.CallbackChannelMessage,
			Data: &wire.InteractionMessage{Content: r.cfg.Placeholder},
		}
		if err := r.deliver.Deliver(ctx, outbound.Callback(p.ID, p.Token, placeholder)); err != nil {
			logger.Error("placeholder delivery failed", "error", err)
		}

	case <-ctx.Done():
		return outbound.NoResponse{}, ctx.Err()
	}

	select {
	case resp := <-results:
		if resp == nil || resp.Data == nil {
			return outbound.NoResponse{}, nil
		}
		return outbound.FollowUp(p.ApplicationID, p.Token, resp.Data), nil
	case <-ctx.Done():
		return outbound.NoResponse{}, ctx.Err()
	}
}

// invoke runs the handler and turns a panic into an error reply.
func (r *Router) invoke(ctx context.Context, in *wire.Interaction, logger *slog.Logger) (resp *wire.InteractionResponse) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("command handler panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			resp = &wire.InteractionResponse{
				Type: wire.CallbackChannelMessage,
				Data: &wire.InteractionMessage{Content: panicMessage, Flags: wire.FlagEphemeral},
			}
		}
	}()
	return r.handler.Invoke(ctx, in)
}
