// Package client implements the peer side of the relay: typed sends for
// every room operation plus a channel of everything the room pushes back.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/typedwire/relay/internal/transport"
	"github.com/typedwire/relay/internal/wire"
	"github.com/typedwire/relay/pkg/protocol"
)

// Transport selects how the client reaches the server.
type Transport int

const (
	TCP Transport = iota
	WebSocket
)

func (tr Transport) String() string {
	if tr == WebSocket {
		return "websocket"
	}
	return "tcp"
}

// ParseTransport reads a transport name as given on the command line.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "tcp":
		return TCP, nil
	case "ws", "websocket":
		return WebSocket, nil
	default:
		return TCP, fmt.Errorf("unknown transport %q", s)
	}
}

const dialTimeout = 5 * time.Second

// Client talks to one relay server.
type Client struct {
	address   string
	username  string
	transport Transport

	conn     *wire.Conn
	mu       sync.RWMutex
	messages chan protocol.Message
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a client for the given server address. Nothing is dialed
// until Connect.
func New(address, username string, tr Transport) *Client {
	return &Client{
		address:   address,
		username:  username,
		transport: tr,
		messages:  make(chan protocol.Message, 16),
		done:      make(chan struct{}),
	}
}

// Connect dials the server and starts the receive loop. The server only
// waits a few seconds for the Join, so follow up promptly.
func (c *Client) Connect() error {
	var conn *wire.Conn
	switch c.transport {
	case WebSocket:
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		wsConn, err := transport.DialWS(ctx, "ws://"+c.address)
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		conn = wire.NewConn(wsConn)
	default:
		tcpConn, err := wire.Dial(c.address)
		if err != nil {
			return err
		}
		conn = tcpConn
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveLoop(conn)

	return nil
}

// Disconnect closes the connection and waits for the receive loop to
// finish. The messages channel closes as part of this. Safe to call more
// than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		c.wg.Wait()
	})
}

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Join introduces the client to the room under its username. The welcome
// notice arrives on Messages.
func (c *Client) Join() error {
	return c.send(protocol.Join{Name: c.username})
}

// Chat sends a line to everyone else in the room.
func (c *Client) Chat(text string) error {
	return c.send(protocol.Chat{Text: text})
}

// Rename changes the name later messages are attributed to.
func (c *Client) Rename(name string) error {
	if err := c.send(protocol.Rename{Name: name}); err != nil {
		return err
	}
	c.username = name
	return nil
}

// Kick asks the room to eject the peer with the given id.
func (c *Client) Kick(peer uint64) error {
	return c.send(protocol.Kick{Peer: peer})
}

// ListPeers asks for the roster; the reply arrives on Messages.
func (c *Client) ListPeers() error {
	return c.send(protocol.ListPeers{})
}

// Leave tells the room the client is going before the connection drops.
func (c *Client) Leave() error {
	return c.send(protocol.Leave{})
}

// Shutdown asks the server to stop the whole room.
func (c *Client) Shutdown() error {
	return c.send(protocol.Shutdown{})
}

// Messages returns the channel carrying everything the room pushes here:
// relayed chat, server notices, roster replies, Kicked and Shutdown. It
// closes once the connection is gone.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *Client) send(msg protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected to server")
	}
	return conn.Send(msg)
}

// receiveLoop drains the connection into the messages channel. A frame
// that fails to decode is skipped; the framing layer has already consumed
// it, so the stream stays in sync.
func (c *Client) receiveLoop(conn *wire.Conn) {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, wire.ErrCorruptPayload) {
				slog.Warn("dropping_undecodable_frame", "error", err)
				continue
			}
			return
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
