// Package relayclient speaks the relay wire protocol from the game-server
// side: handshake, event emission with optional acks, and command intake.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("relayclient: connection closed")

// RejectedError is returned by Dial when the server refuses the handshake.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relayclient: connection rejected: %s", e.Message)
}

type Event struct {
	Name string
	Data json.RawMessage
}

type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

type options struct {
	header       http.Header
	dialer       *websocket.Dialer
	eventBuffer  int
	writeTimeout time.Duration
}

type Option func(*options)

// WithBearerHeader sends the token as an Authorization header instead of in
// the handshake frame.
func WithBearerHeader() Option {
	return func(o *options) {
		o.header = http.Header{}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

type Client struct {
	ID string

	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	events chan Event
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan Ack
	err     error
	done    chan struct{}
}

// Dial connects to url, authenticates with token and waits for the server's
// verdict.
func Dial(ctx context.Context, url, token string, opts ...Option) (*Client, error) {
	o := options{
		dialer:       websocket.DefaultDialer,
		eventBuffer:  64,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var header http.Header
	if o.header != nil {
		header = o.header.Clone()
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := o.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("relayclient: dial: %w", err)
	}

	if header == nil {
		hs := map[string]any{"auth": map[string]string{"token": token}}
		if err := conn.WriteJSON(hs); err != nil {
			conn.Close()
			return nil, fmt.Errorf("relayclient: send handshake: %w", err)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("relayclient: read handshake reply: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch reply.Event {
	case "connect":
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(reply.Data, &payload); err != nil {
			conn.Close()
			return nil, fmt.Errorf("relayclient: decode connect: %w", err)
		}
		c := &Client{
			ID:           payload.ID,
			conn:         conn,
			writeTimeout: o.writeTimeout,
			events:       make(chan Event, o.eventBuffer),
			pending:      make(map[int64]chan Ack),
			done:         make(chan struct{}),
		}
		go c.readLoop()
		return c, nil

	case "connect_error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(reply.Data, &payload)
		conn.Close()
		return nil, &RejectedError{Message: payload.Message}

	default:
		conn.Close()
		return nil, fmt.Errorf("relayclient: unexpected handshake reply %q", reply.Event)
	}
}

// Events delivers every non-ack frame in arrival order. The channel closes
// when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection ends; Err then reports why.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Emit(event string, data any) error {
	return c.write(event, data, nil)
}

// EmitWithAck sends event and waits for the server's acknowledgement.
func (c *Client) EmitWithAck(ctx context.Context, event string, data any) (Ack, error) {
	id := c.nextID.Add(1)
	ch := make(chan Ack, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Ack{}, c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(event, data, &id); err != nil {
		return Ack{}, err
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-c.done:
		return Ack{}, c.Err()
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

func (c *Client) write(event string, data any, ack *int64) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("relayclient: encode %s: %w", event, err)
		}
		raw = b
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteJSON(frame{Event: event, Data: raw, Ack: ack}); err != nil {
		return fmt.Errorf("relayclient: write %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.fail(err)
			return
		}

		if f.Event == "ack" && f.Ack != nil {
			var ack Ack
			_ = json.Unmarshal(f.Data, &ack)
			c.mu.Lock()
			ch, ok := c.pending[*f.Ack]
			c.mu.Unlock()
			if ok {
				ch <- ack
			}
			continue
		}

		select {
		case c.events <- Event{Name: f.Event, Data: f.Data}:
		case <-c.done:
			return
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) {
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}
	c.err = err
	close(c.done)
}

func (c *Client) Close() error {
	c.fail(ErrClosed)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
