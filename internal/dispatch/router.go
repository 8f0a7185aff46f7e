// ABOUTME: Routes named dispatch events to the mention-trigger reply or the interaction router
// ABOUTME: Drops dispatches replayed after a resume and messages the bot wrote itself

package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/2389/coven-discord/internal/dedupe"
	"github.com/2389/coven-discord/internal/metrics"
	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/wire"
)

const (
	defaultTrigger = "ping"
	defaultReply   = "pong"
)

// Identity reports the bot's own user id, known once Ready was handled.
type Identity interface {
	BotUserID() string
}

// InteractionRouter answers interactions.
type InteractionRouter interface {
	Route(ctx context.Context, in *wire.Interaction) (outbound.Instruction, error)
}

// Config holds the mention-trigger behavior.
type Config struct {
	Trigger string
	Reply   string
}

// Router maps dispatch events to handlers. It is safe for concurrent use.
type Router struct {
	cfg          Config
	identity     Identity
	interactions InteractionRouter
	seen         *dedupe.Window
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates a router. seen and m may be nil.
func New(cfg Config, identity Identity, interactions InteractionRouter, seen *dedupe.Window, m *metrics.Metrics, logger *slog.Logger) *Router {
	if cfg.Trigger == "" {
		cfg.Trigger = defaultTrigger
	}
	if cfg.Reply == "" {
		cfg.Reply = defaultReply
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:          cfg,
		identity:     identity,
		interactions: interactions,
		seen:         seen,
		metrics:      m,
		logger:       logger.With("component", "dispatch"),
	}
}

// Route handles one dispatch envelope. Unknown events produce NoResponse.
func (r *Router) Route(ctx context.Context, env *wire.Envelope) (outbound.Instruction, error) {
	switch env.DispatchEvent() {
	case wire.EventMessageCreate:
		return r.messageCreate(env)
	case wire.EventInteractionCreate:
		return r.interactionCreate(ctx, env)
	default:
		return outbound.NoResponse{}, nil
	}
}

func (r *Router) messageCreate(env *wire.Envelope) (outbound.Instruction, error) {
	var msg wire.MessageCreate
	if err := wire.DecodeData(env, "message create", &msg); err != nil {
		return outbound.NoResponse{}, err
	}

	botID := r.identity.BotUserID()
	if botID == "" || (msg.Author != nil && msg.Author.ID == botID) {
		return outbound.NoResponse{}, nil
	}
	if len(msg.Mentions) != 1 || msg.Mentions[0].ID != botID {
		return outbound.NoResponse{}, nil
	}
	if !MatchTrigger(msg.Content, r.cfg.Trigger) {
		return outbound.NoResponse{}, nil
	}
	if r.duplicate("message", msg.ID) {
		return outbound.NoResponse{}, nil
	}

	r.logger.Info("trigger matched", "message_id", msg.ID, "channel_id", msg.ChannelID)
	return outbound.ChannelMessage(msg.ChannelID, &wire.ChannelMessage{
		Content: r.cfg.Reply,
		MessageReference: &wire.MessageReference{
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
			GuildID:   msg.GuildID,
		},
	}), nil
}

func (r *Router) interactionCreate(ctx context.Context, env *wire.Envelope) (outbound.Instruction, error) {
	var in wire.Interaction
	if err := wire.DecodeData(env, "interaction", &in); err != nil {
		return outbound.NoResponse{}, err
	}
	if r.duplicate("interaction", in.ID) {
		return outbound.NoResponse{}, nil
	}
	if r.interactions == nil {
		return outbound.NoResponse{}, nil
	}
	return r.interactions.Route(ctx, &in)
}

func (r *Router) duplicate(kind, id string) bool {
	if r.seen == nil || id == "" {
		return false
	}
	if !r.seen.Seen(dedupe.Key(kind, id)) {
		return false
	}
	r.logger.Debug("dropping replayed dispatch", "kind", kind, "id", id)
	r.metrics.DuplicateDropped(kind)
	return true
}

// MatchTrigger reports whether content, with everything up to and including
// the first <...> token and the whitespace after it removed, equals trigger.
func MatchTrigger(content, trigger string) bool {
	if trigger == "" {
		return false
	}
	open := strings.IndexByte(content, '<')
	if open < 0 {
		return false
	}
	end := strings.IndexByte(content[open:], '>')
	if end < 0 {
		return false
	}
	rest := strings.TrimLeftFunc(content[open+end+1:], unicode.IsSpace)
	return rest == trigger
}
