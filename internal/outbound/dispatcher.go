// ABOUTME: Delivers outbound instructions to the socket writer or the REST side channel
// ABOUTME: Reconciles global commands by listing, comparing and replacing only on mismatch

package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-discord/internal/metrics"
	"github.com/2389/coven-discord/internal/rest"
	"github.com/2389/coven-discord/internal/wire"
)

// Socket accepts encoded frames for the gateway connection.
type Socket interface {
	Send(ctx context.Context, data []byte) error
}

// API is the REST surface the dispatcher needs.
type API interface {
	Do(ctx context.Context, method, path string, body, out any) error
	ListCommands(ctx context.Context, applicationID string) ([]wire.Command, error)
	RegisterCommands(ctx context.Context, applicationID string, cmds []wire.Command) error
}

// Dispatcher routes instructions. It is safe for concurrent use; socket
// writes are serialized by the Socket.
type Dispatcher struct {
	socket  Socket
	api     API
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(socket Socket, api API, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		socket:  socket,
		api:     api,
		metrics: m,
		logger:  logger.With("component", "outbound"),
	}
}

// Deliver carries out in. A nil instruction is treated as NoResponse.
func (d *Dispatcher) Deliver(ctx context.Context, in Instruction) error {
	start := time.Now()

	switch in := in.(type) {
	case nil, NoResponse, *NoResponse:
		return nil

	case SocketFrame:
		err := d.sendFrame(ctx, in)
		d.metrics.Delivered("socket", err, time.Since(start))
		return err

	case WebhookCall:
		err := d.call(ctx, in)
		d.metrics.Delivered(in.Kind.String(), err, time.Since(start))
		return err

	case CommandReconciliation:
		err := d.reconcile(ctx, in)
		d.metrics.Delivered("reconcile", err, time.Since(start))
		return err

	default:
		return fmt.Errorf("unsupported instruction %T", in)
	}
}

func (d *Dispatcher) sendFrame(ctx context.Context, f SocketFrame) error {
	data, err := wire.Encode(f.Frame)
	if err != nil {
		return err
	}
	if err := d.socket.Send(ctx, data); err != nil {
		return fmt.Errorf("sending %s frame: %w", f.Frame.Op, err)
	}
	d.logger.Debug("frame sent", "op", f.Frame.Op.String(), "bytes", len(data))
	return nil
}

func (d *Dispatcher) call(ctx context.Context, w WebhookCall) error {
	method, path, err := w.Route()
	if err != nil {
		return err
	}

	if err := d.api.Do(ctx, method, path, w.Body, nil); err != nil {
		var derr *rest.DeliveryError
		if errors.As(err, &derr) {
			d.logger.Error("delivery rejected",
				"kind", w.Kind.String(),
				"status", derr.Status,
				"body", derr.Body,
			)
		}
		return fmt.Errorf("delivering %s: %w", w.Kind, err)
	}
	d.logger.Debug("delivered", "kind", w.Kind.String(), "path", path)
	return nil
}

// reconcile replaces the remote commands only when they differ from the
// desired list. A failed listing counts as an empty remote list.
func (d *Dispatcher) reconcile(ctx context.Context, r CommandReconciliation) error {
	if r.ApplicationID == "" {
		return fmt.Errorf("reconciling commands: %w", ErrIncompleteRoute)
	}

	remote, err := d.api.ListCommands(ctx, r.ApplicationID)
	if err != nil {
		d.logger.Warn("listing commands failed, treating remote list as empty", "error", err)
		remote = nil
	}

	if wire.CommandsEqual(remote, r.Desired) {
		d.logger.Info("commands up to date", "count", len(r.Desired))
		return nil
	}

	if err := d.api.RegisterCommands(ctx, r.ApplicationID, r.Desired); err != nil {
		var derr *rest.DeliveryError
		if errors.As(err, &derr) {
			d.logger.Error("command registration rejected", "status", derr.Status, "body", derr.Body)
		}
		return err
	}
	d.logger.Info("commands registered", "count", len(r.Desired), "previous", len(remote))
	return nil
}
