// ABOUTME: Built-in application commands and the list registered with the platform
// ABOUTME: Implements ping, http-cat and the unknown-command error reply

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/2389/coven-discord/internal/wire"
)

const (
	defaultCatBaseURL = "https://http.cat/"
	defaultCatSuffix  = ".jpg"
	fallbackCatCode   = 404

	busyMessage      = "Still working on your last request, hang on."
	noDataMessage    = "That request made no sense at all, nothing to go on."
	noOptionsMessage = "I couldn't make out that request, it was very mumbled."
)

// unknownAnswers prefix the reply to a command nobody implemented.
var unknownAnswers = []string{
	"Huh? Didn't catch the concept there.",
	"Didn't hear you, could you repeat that?",
	"That's some strange talk, I don't follow.",
}

// Prober checks whether an external URL resolves.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// HTTPCatConfig points the http-cat command at an image host.
type HTTPCatConfig struct {
	BaseURL string
	Suffix  string
}

// Registry answers application commands and lists the ones it wants
// registered. It is safe for concurrent use.
type Registry struct {
	cat    HTTPCatConfig
	prober Prober
	logger *slog.Logger

	// inFlight holds "command:user" keys of invocations still running
	inFlight sync.Map
}

// New creates the registry. prober may be nil, in which case http-cat never
// checks the host and always links the requested code.
func New(cat HTTPCatConfig, prober Prober, logger *slog.Logger) *Registry {
	if cat.BaseURL == "" {
		cat.BaseURL = defaultCatBaseURL
	}
	if cat.Suffix == "" {
		cat.Suffix = defaultCatSuffix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cat:    cat,
		prober: prober,
		logger: logger.With("component", "commands"),
	}
}

// Desired returns the global commands that should be registered. error is
// listed without an implementation so the unknown-command reply can be
// exercised from a client.
func (r *Registry) Desired() []wire.Command {
	return []wire.Command{
		{
			Name:        "ping",
			Description: "Replies with pong",
			Options: []wire.CommandOption{
				{Name: "public", Type: wire.OptionBoolean, Description: "Allow others to see the answer (default: false)"},
			},
		},
		{
			Name:        "http-cat",
			Description: "Returns a picture of a cat for an HTTP status code",
			Options: []wire.CommandOption{
				{Name: "code", Type: wire.OptionInteger, Description: "HTTP code of the desired cat", Required: true},
				{Name: "public", Type: wire.OptionBoolean, Description: "Allow others to see the answer (default: true)"},
			},
		},
		{
			Name:        "error",
			Description: "Triggers the unknown command reply",
		},
	}
}

// Invoke runs the named command.
func (r *Registry) Invoke(ctx context.Context, in *wire.Interaction) *wire.InteractionResponse {
	if in.Data == nil {
		r.logger.Error("interaction without command data", "interaction_id", in.ID)
		return errorResponse(noDataMessage)
	}

	switch in.Data.Name {
	case "ping":
		return r.ping(in)
	case "http-cat":
		return r.guarded(in, func() *wire.InteractionResponse { return r.httpCat(ctx, in) })
	default:
		r.logger.Warn("unknown command", "command", in.Data.Name, "interaction_id", in.ID)
		answer := unknownAnswers[rand.IntN(len(unknownAnswers))]
		return errorResponse(fmt.Sprintf("%s Never heard of anything called %s.", answer, in.Data.Name))
	}
}

// guarded rejects a second concurrent invocation of the same command by the
// same user.
func (r *Registry) guarded(in *wire.Interaction, run func() *wire.InteractionResponse) *wire.InteractionResponse {
	user := in.Invoker()
	if user == nil || user.ID == "" {
		return run()
	}

	key := in.Data.Name + ":" + user.ID
	if _, loaded := r.inFlight.LoadOrStore(key, struct{}{}); loaded {
		r.logger.Debug("command already running for user, rejecting", "command", in.Data.Name, "user_id", user.ID)
		return errorResponse(busyMessage)
	}
	defer r.inFlight.Delete(key)
	return run()
}

// ping is private unless public is set to true.
func (r *Registry) ping(in *wire.Interaction) *wire.InteractionResponse {
	flags := wire.FlagEphemeral
	if opt, ok := in.Data.Option("public"); ok {
		if public, ok := opt.Bool(); ok && public {
			flags = 0
		}
	}
	return message("pong", flags)
}

// httpCat is public unless public is set to false. Codes the host does not
// know are replaced by 404.
func (r *Registry) httpCat(ctx context.Context, in *wire.Interaction) *wire.InteractionResponse {
	if len(in.Data.Options) == 0 {
		r.logger.Error("http-cat without options", "interaction_id", in.ID)
		return errorResponse(noOptionsMessage)
	}

	flags := 0
	if opt, ok := in.Data.Option("public"); ok {
		if public, ok := opt.Bool(); ok && !public {
			flags = wire.FlagEphemeral
		}
	}

	code := fallbackCatCode
	if opt, ok := in.Data.Option("code"); ok {
		if v, ok := opt.Int(); ok {
			code = v
		}
	}

	if code != fallbackCatCode && !r.catExists(ctx, code) {
		code = fallbackCatCode
	}
	return message(r.catURL(code), flags)
}

func (r *Registry) catURL(code int) string {
	return r.cat.BaseURL + strconv.Itoa(code) + r.cat.Suffix
}

func (r *Registry) catExists(ctx context.Context, code int) bool {
	if r.prober == nil {
		return true
	}
	status, err := r.prober.Probe(ctx, r.catURL(code))
	if err != nil {
		r.logger.Warn("cat host unreachable", "code", code, "error", err)
		return false
	}
	return status >= 200 && status <= 299
}

func message(content string, flags int) *wire.InteractionResponse {
	return &wire.InteractionResponse{
		Type: wire.CallbackChannelMessage,
		Data: &wire.InteractionMessage{Content: content, Flags: flags},
	}
}

func errorResponse(content string) *wire.InteractionResponse {
	return message(content, wire.FlagEphemeral)
}
