// ABOUTME: Session orchestrator that drives the gateway receive loop
// ABOUTME: Connects or resumes, fans frames out to a bounded pool and reacts to reconnect signals

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/2389/coven-discord/internal/commands"
	"github.com/2389/coven-discord/internal/config"
	"github.com/2389/coven-discord/internal/dedupe"
	"github.com/2389/coven-discord/internal/dispatch"
	"github.com/2389/coven-discord/internal/interaction"
	"github.com/2389/coven-discord/internal/metrics"
	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/rest"
	"github.com/2389/coven-discord/internal/session"
	"github.com/2389/coven-discord/internal/system"
	"github.com/2389/coven-discord/internal/transport"
	"github.com/2389/coven-discord/internal/wire"
)

const (
	apiVersion = "10"
	clientName = "coven-discord"

	// maxResumeDials is how many failed resume dials in a row drop the
	// session and fall back to a fresh identify
	maxResumeDials = 3
)

// Gateway owns one gateway session and everything that serves it.
type Gateway struct {
	config   *config.Config
	conn     *transport.Conn
	api      *rest.Client
	state    *session.State
	machine  *system.Machine
	out      *outbound.Dispatcher
	registry *commands.Registry
	heart    *heartbeat
	seen     *dedupe.Window
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// pool bounds concurrently running processing units
	pool  *semaphore.Weighted
	units sync.WaitGroup

	backoff Backoff
	rng     *rand.Rand

	// gatewayURL is the fresh-connect URL, resolved on first connect when
	// the config leaves it empty
	gatewayURL string

	mu sync.Mutex
	// generation increments with every socket so stale units cannot close
	// a newer one
	generation uint64
	// forced is set when the current socket was closed on purpose
	forced bool

	// resumeFailures counts consecutive failed resume dials
	resumeFailures int
}

// New wires a gateway from cfg. reg may be nil to disable metrics.
func New(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	api, err := rest.New(rest.Options{
		BaseURL:           cfg.Discord.APIBaseURL,
		Token:             cfg.Discord.BotToken,
		UserAgent:         cfg.REST.UserAgent,
		Timeout:           cfg.REST.Timeout,
		RequestsPerSecond: cfg.REST.RequestsPerSecond,
		Burst:             cfg.REST.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rest client: %w", err)
	}

	conn := transport.New(transport.Options{
		WriteTimeout: cfg.Gateway.WriteTimeout,
		QueueSize:    cfg.Gateway.QueueSize,
	}, logger)

	g := &Gateway{
		config:  cfg,
		conn:    conn,
		api:     api,
		state:   session.New(),
		metrics: m,
		logger:  logger.With("component", "gateway"),
		pool:    semaphore.NewWeighted(int64(max(cfg.Gateway.ThreadFactor, 1))),
		backoff: Backoff{
			Initial:    cfg.Gateway.ReconnectBackoff.InitialDelay,
			Max:        cfg.Gateway.ReconnectBackoff.MaxDelay,
			Multiplier: cfg.Gateway.ReconnectBackoff.Multiplier,
			Jitter:     cfg.Gateway.ReconnectBackoff.Jitter,
		},
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		gatewayURL: withGatewayQuery(cfg.Discord.GatewayURL),
	}

	g.out = outbound.NewDispatcher(conn, api, m, logger)
	g.registry = commands.New(commands.HTTPCatConfig{
		BaseURL: cfg.Addons.HTTPCat.BaseURL,
		Suffix:  cfg.Addons.HTTPCat.Suffix,
	}, api, logger)
	g.seen = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	interactions := interaction.New(interaction.Config{
		Deadline:      cfg.Interactions.Deadline,
		Placeholder:   cfg.Interactions.Placeholder,
		ApplicationID: cfg.Discord.ApplicationID,
	}, g.registry, g.out, m, logger)

	router := dispatch.New(dispatch.Config{
		Trigger: cfg.Bot.Trigger,
		Reply:   cfg.Bot.Reply,
	}, g.state, interactions, g.seen, m, logger)

	g.heart = &heartbeat{
		state:      g.state,
		deliver:    g.out.Deliver,
		generation: g.currentGeneration,
		onZombie:   g.zombied,
		limit:      max(cfg.Gateway.MissedAckLimit, 1),
		timeout:    cfg.Gateway.WriteTimeout,
		metrics:    m,
		logger:     logger.With("component", "heartbeat"),
	}

	g.machine = system.New(system.Config{
		Token:   cfg.Discord.BotToken,
		Intents: cfg.Discord.Intents,
		Properties: wire.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: clientName,
			Device:  clientName,
		},
		ApplicationID: cfg.Discord.ApplicationID,
		Strategy:      system.Strategy(cfg.Gateway.ResumeStrategy),
	}, g.state, g.heart, g.registry, router, logger)

	return g, nil
}

// Commands returns the registry answering application commands.
func (g *Gateway) Commands() *commands.Registry {
	return g.registry
}

// Session returns a copy of the current session state.
func (g *Gateway) Session() session.Snapshot {
	return g.state.Snapshot()
}

// Run drives the session until ctx is cancelled. Connection failures are
// retried, never returned.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway session",
		"thread_factor", g.config.Gateway.ThreadFactor,
		"resume_strategy", g.config.Gateway.ResumeStrategy,
	)

	g.heart.attach(ctx)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		g.seen.Run(ctx)
	}()

	g.loop(ctx)

	err := g.gracefulShutdown()
	background.Wait()
	return err
}

func (g *Gateway) loop(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if !g.conn.Connected() {
			if attempt > 0 {
				delay := g.backoff.Delay(attempt, g.rng)
				g.logger.Info("waiting before reconnect", "attempt", attempt, "delay", delay)
				if !sleep(ctx, delay) {
					return
				}
			}
			if err := g.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				attempt++
				g.logger.Warn("connect failed", "attempt", attempt, "error", err)
				continue
			}
		}

		data, err := g.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if g.lost(err) {
				attempt++
			}
			continue
		}

		env, err := wire.Decode(data)
		if err != nil {
			g.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
			continue
		}
		g.metrics.FrameReceived(env.Op.String())
		g.machine.Observe(env)

		// A new or resumed session proves the connection is healthy
		if ev := env.DispatchEvent(); ev == wire.EventReady || ev == wire.EventResumed {
			attempt = 0
		}

		if err := g.pool.Acquire(ctx, 1); err != nil {
			return
		}
		g.units.Add(1)
		go g.process(ctx, env, g.currentGeneration())
	}
}

// connect opens a socket, resuming when the session can be resumed.
func (g *Gateway) connect(ctx context.Context) error {
	if g.gatewayURL == "" {
		info, err := g.api.GatewayBot(ctx)
		if err != nil {
			return err
		}
		g.gatewayURL = withGatewayQuery(info.URL)
		g.logger.Info("discovered gateway url", "url", g.gatewayURL, "shards", info.Shards)
	}

	mode := "identify"
	var err error
	if data, ok := g.state.ResumeData(); ok && g.config.Gateway.ResumeStrategy == string(system.StrategyResume) {
		mode = "resume"
		err = g.conn.ConnectResuming(ctx, withGatewayQuery(data.URL))
		if err != nil && ctx.Err() == nil {
			g.resumeFailures++
			if g.resumeFailures >= maxResumeDials {
				g.logger.Warn("resume url unreachable, starting a new session",
					"attempts", g.resumeFailures, "error", err)
				g.resumeFailures = 0
				g.state.Clear()
			}
		}
	} else {
		err = g.conn.Connect(ctx, g.gatewayURL)
	}
	if err != nil {
		return err
	}
	g.resumeFailures = 0

	g.mu.Lock()
	g.generation++
	g.mu.Unlock()

	g.metrics.Connected(mode)
	g.logger.Info("gateway connected", "mode", mode)
	return nil
}

func (g *Gateway) currentGeneration() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// lost handles a failed receive and reports whether the reconnect should
// back off.
func (g *Gateway) lost(err error) bool {
	g.heart.Stop()
	g.state.ResetLiveness()

	g.mu.Lock()
	forced := g.forced
	g.forced = false
	g.mu.Unlock()

	// Receive leaves a failed socket in place
	g.conn.Close(transport.ResumeCloseCode, "connection lost")

	if forced {
		g.logger.Info("reconnecting")
		return false
	}

	var terr *transport.Error
	if errors.As(err, &terr) && !terr.Resumable() {
		g.state.Clear()
		g.logger.Error("connection closed, session cannot be resumed", "code", terr.Code, "error", err)
		return true
	}
	g.logger.Warn("connection lost", "error", err)
	return true
}

// forceReconnect closes the socket of generation gen so the receive loop
// reconnects. Unresumable sessions are already cleared by the state machine.
func (g *Gateway) forceReconnect(gen uint64, code int, reason string) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	g.forced = true
	g.mu.Unlock()

	g.conn.Close(code, reason)
}

// zombied is called by the heartbeat scheduler when acks stop arriving on
// the socket of generation gen.
func (g *Gateway) zombied(gen uint64) {
	g.forceReconnect(gen, transport.ResumeCloseCode, "heartbeat not acknowledged")
}

// process runs one unit: state machine, routing, delivery.
func (g *Gateway) process(ctx context.Context, env *wire.Envelope, gen uint64) {
	defer g.units.Done()
	defer g.pool.Release(1)

	g.metrics.UnitStarted()
	defer g.metrics.UnitFinished()

	logger := g.logger.With("unit_id", uuid.NewString(), "op", env.Op.String())
	if env.Seq != nil {
		logger = logger.With("seq", *env.Seq)
	}
	if env.Event != "" {
		logger = logger.With("event", env.Event)
	}

	in, err := g.machine.Handle(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, system.ErrReconnect):
		logger.Info("closing socket to resume")
		g.forceReconnect(gen, transport.ResumeCloseCode, "reconnect requested")
		return
	case errors.Is(err, system.ErrInvalidSession):
		logger.Info("closing socket to start a new session")
		g.forceReconnect(gen, websocket.CloseNormalClosure, "session invalidated")
		return
	default:
		var decodeErr *wire.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Warn("ignoring malformed payload", "error", err)
		} else {
			logger.Error("processing frame failed", "error", err)
		}
	}

	if err := g.out.Deliver(ctx, in); err != nil && ctx.Err() == nil {
		logger.Error("delivery failed", "error", err)
	}
}

// gracefulShutdown waits for in-flight units and closes the socket, each
// bounded by the close timeout.
func (g *Gateway) gracefulShutdown() error {
	g.logger.Info("shutting down gateway")
	timeout := g.config.Gateway.CloseTimeout

	g.heart.Stop()

	var errs []error
	if !waitTimeout(func() { g.units.Wait() }, timeout) {
		errs = append(errs, fmt.Errorf("processing units still running after %s", timeout))
	}
	if !waitTimeout(func() { g.conn.Close(websocket.CloseNormalClosure, "shutting down") }, timeout) {
		errs = append(errs, fmt.Errorf("socket close exceeded %s", timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// waitTimeout runs fn and reports whether it returned within timeout.
// A zero timeout waits indefinitely.
func waitTimeout(fn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// withGatewayQuery pins the protocol version and encoding unless the URL
// already carries a query.
func withGatewayQuery(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery != "" {
		return raw
	}
	u.RawQuery = url.Values{"v": {apiVersion}, "encoding": {"json"}}.Encode()
	return u.String()
}
