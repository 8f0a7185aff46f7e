// ABOUTME: Heartbeat scheduler started by Hello and replaced on every new socket
// ABOUTME: Sends heartbeats on the announced interval and reports a zombied connection

package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-discord/internal/metrics"
	"github.com/2389/coven-discord/internal/outbound"
	"github.com/2389/coven-discord/internal/session"
	"github.com/2389/coven-discord/internal/wire"
)

// heartbeat implements system.Heartbeater. At most one beating loop runs at
// a time; Start replaces it.
type heartbeat struct {
	state   *session.State
	deliver func(ctx context.Context, in outbound.Instruction) error
	// generation names the socket a loop beats for, read once per Start
	generation func() uint64
	// onZombie is called once with the loop's generation when missed acks
	// reach limit
	onZombie func(gen uint64)
	limit    int
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// attach sets the context loops are derived from.
func (h *heartbeat) attach(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parent = ctx
}

// Start begins beating every interval, the first beat one interval from now.
func (h *heartbeat) Start(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()

	parent := h.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	var gen uint64
	if h.generation != nil {
		gen = h.generation()
	}
	go h.loop(ctx, interval, gen, done)
}

// Stop ends the running loop, if any, and waits for it to exit.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *heartbeat) stopLocked() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
}

func (h *heartbeat) loop(ctx context.Context, interval time.Duration, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.Debug("heartbeat started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.beat(ctx, gen) {
				return
			}
		}
	}
}

// beat sends one heartbeat. It returns false once the connection is
// considered dead.
func (h *heartbeat) beat(ctx context.Context, gen uint64) bool {
	seq, missed := h.state.BeginHeartbeat()
	if missed > 0 {
		h.metrics.AckMissed()
	}
	if missed >= h.limit {
		h.logger.Warn("heartbeat not acknowledged, connection is zombied", "missed", missed)
		// onZombie closes the socket, which must not wait on this loop
		go h.onZombie(gen)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.deliver(sendCtx, outbound.SocketFrame{Frame: wire.HeartbeatFrame(seq)}); err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("heartbeat not sent", "error", err)
		}
		return true
	}
	h.metrics.HeartbeatSent()
	return true
}
