package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/typedwire/relay/internal/transport"
	"github.com/typedwire/relay/pkg/protocol"
)

// Conn sends and receives typed messages over a transport connection.
// Send is safe for concurrent use: a frame from one Send is never
// interleaved with another. Receive must stay on a single goroutine,
// which is how the relay runs its per-peer readers anyway.
type Conn struct {
	conn       transport.Conn
	reader     io.Reader
	maxPayload uint64

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Conn.
type Option func(*Conn)

// WithMaxPayload overrides the frame payload cap.
func WithMaxPayload(n uint64) Option {
	return func(c *Conn) { c.maxPayload = n }
}

// WithReader makes the Conn read through an existing buffered reader,
// used when protocol detection already consumed bytes from the stream.
func WithReader(r *bufio.Reader) Option {
	return func(c *Conn) { c.reader = r }
}

// NewConn wraps a transport connection for typed-message traffic.
func NewConn(tc transport.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:       tc,
		maxPayload: DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(tc)
	}
	return c
}

// Send encodes msg and writes it to the stream as one frame.
func (c *Conn) Send(msg protocol.Message) error {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, payload)
}

// Receive blocks until the next full frame arrives and decodes it.
// Framing errors are terminal. A decode failure comes back wrapped in
// ErrCorruptPayload with the stream already positioned at the next frame,
// so the caller chooses whether to drop the message or the connection.
func (c *Conn) Receive() (protocol.Message, error) {
	payload, err := ReadFrame(c.reader, c.maxPayload)
	if err != nil {
		return nil, err
	}
	msg, err := protocol.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}
	return msg, nil
}

// Close closes the underlying connection. It is safe to call from any
// goroutine; repeated calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetReadDeadline bounds the next Receive.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}
