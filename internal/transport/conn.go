// ABOUTME: Websocket frame transport with growable message assembly and a single-writer queue
// ABOUTME: Owns the physical socket; connects fresh or resuming, receives whole messages

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// initialBufferSize is the receive buffer a message assembly starts with.
	initialBufferSize = 4096

	// ResumeCloseCode closes a socket without invalidating the server session.
	ResumeCloseCode = 4000

	defaultQueueSize    = 64
	defaultWriteTimeout = 10 * time.Second
	defaultHandshake    = 10 * time.Second
)

var (
	// ErrNotConnected indicates an operation on a transport with no open socket.
	ErrNotConnected = errors.New("not connected")

	// ErrDiscarded is returned to senders whose queued frame was dropped by a fresh connect.
	ErrDiscarded = errors.New("queued frame discarded by fresh connect")
)

// Options configures a Conn.
type Options struct {
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	QueueSize        int
	Header           http.Header
}

// outgoing is one queued socket write.
type outgoing struct {
	data   []byte
	result chan error
}

// Conn is the gateway socket. Receive must not be called concurrently with
// itself; Send may be called from any goroutine.
type Conn struct {
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       *slog.Logger

	// queue outlives individual sockets so a resuming connect can flush it
	queue chan *outgoing

	mu   sync.Mutex
	ws   *websocket.Conn
	stop chan struct{}

	readMu sync.Mutex
}

// New creates a disconnected transport.
func New(opts Options, logger *slog.Logger) *Conn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshake
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		header:       opts.Header,
		writeTimeout: opts.WriteTimeout,
		logger:       logger.With("component", "transport"),
		queue:        make(chan *outgoing, opts.QueueSize),
	}
}

// Connect opens a fresh socket to url. Frames still queued from a previous
// socket are discarded.
func (c *Conn) Connect(ctx context.Context, url string) error {
	return c.connect(ctx, url, false)
}

// ConnectResuming opens a socket to url and keeps queued frames so they are
// written to the new socket.
func (c *Conn) ConnectResuming(ctx context.Context, url string) error {
	return c.connect(ctx, url, true)
}

func (c *Conn) connect(ctx context.Context, url string, keepQueue bool) error {
	c.teardown(websocket.CloseNormalClosure, "reconnecting")
	if !keepQueue {
		c.discardQueued()
	}

	ws, resp, err := c.dialer.DialContext(ctx, url, c.header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return &Error{Op: "dial", Status: status, Err: err}
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(ws, stop)

	c.logger.Info("socket connected", "url", url, "resuming", keepQueue)
	return nil
}

// Connected reports whether a socket is open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Close sends a close frame with the given code and tears the socket down.
// It is a no-op when nothing is connected.
func (c *Conn) Close(code int, reason string) {
	c.teardown(code, reason)
}

func (c *Conn) teardown(code int, reason string) {
	c.mu.Lock()
	ws, stop := c.ws, c.stop
	c.ws, c.stop = nil, nil
	c.mu.Unlock()

	if ws == nil {
		return
	}
	close(stop)

	deadline := time.Now().Add(c.writeTimeout)
	if err := ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		c.logger.Debug("close frame not sent", "error", err)
	}
	if err := ws.Close(); err != nil {
		c.logger.Debug("socket close failed", "error", err)
	}
	c.logger.Info("socket closed", "code", code, "reason", reason)
}

// discardQueued fails every frame waiting in the queue.
func (c *Conn) discardQueued() {
	for {
		select {
		case item := <-c.queue:
			item.result <- ErrDiscarded
		default:
			return
		}
	}
}

// Send queues data for the socket writer and waits until it is written, the
// write fails or ctx ends.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	item := &outgoing{data: data, result: make(chan error, 1)}

	select {
	case c.queue <- item:
	case <-ctx.Done():
		return fmt.Errorf("queueing frame: %w", ctx.Err())
	}

	select {
	case err := <-item.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for frame write: %w", ctx.Err())
	}
}

// writeLoop is the only goroutine that writes data frames to ws.
func (c *Conn) writeLoop(ws *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case item := <-c.queue:
			if err := ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				item.result <- &Error{Op: "write", Err: err}
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, item.data); err != nil {
				item.result <- classify("write", err)
				return
			}
			item.result <- nil
		}
	}
}

// Receive blocks until one complete text or binary message arrives.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, &Error{Op: "receive", Err: ErrNotConnected}
	}

	// Unblock the read when ctx ends. The socket stays open so Close can
	// still send its close frame.
	stopWatch := context.AfterFunc(ctx, func() { _ = ws.SetReadDeadline(time.Now()) })
	defer stopWatch()

	_, r, err := ws.NextReader()
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "receive", Err: ctx.Err()}
		}
		return nil, classify("receive", err)
	}

	data, err := assemble(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "receive", Err: ctx.Err()}
		}
		return nil, classify("receive", err)
	}
	return data, nil
}

// assemble reads one logical message into a buffer that starts at
// initialBufferSize bytes and doubles, copying what it holds, whenever it
// fills before the end of the message.
func assemble(r io.Reader) ([]byte, error) {
	buf := make([]byte, initialBufferSize)
	n := 0
	for {
		if n == len(buf) {
			grown := make([]byte, len(buf)*2)
			copy(grown, buf[:n])
			buf = grown
		}
		m, err := r.Read(buf[n:])
		n += m
		if errors.Is(err, io.EOF) {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}
