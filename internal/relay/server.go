package relay

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/typedwire/relay/internal/metrics"
	"github.com/typedwire/relay/internal/transport"
	"github.com/typedwire/relay/internal/wire"
	"github.com/typedwire/relay/pkg/protocol"
)

// DefaultHandshakeTimeout bounds how long a new connection gets to present
// its Join frame.
const DefaultHandshakeTimeout = 5 * time.Second

// ErrServerClosed is returned by Start after Stop ends the accept loop.
var ErrServerClosed = errors.New("relay: server closed")

// Server accepts peers over TCP and WebSocket on a single port and runs
// the room.
type Server struct {
	address string
	hub     *Hub

	listener net.Listener
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	nextID   atomic.Uint64

	handshakeTimeout time.Duration
	maxPayload       uint64
	rateLimit        rate.Limit
	rateBurst        int
	metrics          *metrics.Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHandshakeTimeout overrides how long a connection may take to join.
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.handshakeTimeout = d }
}

// WithMaxPayload overrides the frame payload cap for peer connections.
func WithMaxPayload(n uint64) ServerOption {
	return func(s *Server) { s.maxPayload = n }
}

// WithRateLimit applies a per-connection message rate limit. A zero limit
// disables limiting.
func WithRateLimit(limit rate.Limit, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = limit
		s.rateBurst = burst
	}
}

// WithMetrics wires the server's counters to m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server. The hub goroutine starts here so Stop is safe to
// call whether or not Start ever ran.
func New(address string, opts ...ServerOption) *Server {
	s := &Server{
		address:          address,
		conns:            make(map[net.Conn]struct{}),
		quit:             make(chan struct{}),
		handshakeTimeout: DefaultHandshakeTimeout,
		maxPayload:       wire.DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.metrics)
	return s
}

// Start binds the listener and accepts peers until Stop. It blocks.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	slog.Info("relay_started", "address", listener.Addr().String())

	for {
		select {
		case <-s.quit:
			return ErrServerClosed
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.quit:
					return ErrServerClosed
				default:
					if errors.Is(err, net.ErrClosed) {
						return fmt.Errorf("accept failed: %w", err)
					}
					slog.Error("accept_failed", "error", err)
					continue
				}
			}

			s.trackConn(conn)
			s.wg.Add(1)
			go s.handleConn(conn)
		}
	}
}

// Stop closes the room: peers hear Shutdown, every connection is closed,
// and all session goroutines drain before it returns.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.hub.ShutdownAll()
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.hub.Stop()
		slog.Info("relay_stopped")
	})
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// PeerCount returns the number of peers currently in the room.
func (s *Server) PeerCount() int {
	return len(s.hub.Roster())
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn detects the stream protocol, runs the join handshake and
// hands the connection to a session.
func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(nc)

	sid := uuid.NewString()
	reader := bufio.NewReader(nc)

	// One deadline covers protocol detection, the WebSocket upgrade and
	// the Join read. It is never re-armed, so a client cannot stretch
	// the handshake by dribbling bytes.
	if s.handshakeTimeout > 0 {
		nc.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	}

	proto, err := detectProtocol(reader)
	if err != nil {
		slog.Warn("protocol_detection_failed",
			"session_id", sid, "remote_addr", nc.RemoteAddr().String(), "error", err)
		nc.Close()
		return
	}

	var conn *wire.Conn
	switch proto {
	case streamWebSocket:
		wsConn, err := transport.UpgradeWS(nc, reader)
		if err != nil {
			slog.Warn("websocket_upgrade_failed", "session_id", sid, "error", err)
			nc.Close()
			return
		}
		conn = wire.NewConn(wsConn, wire.WithMaxPayload(s.maxPayload))
	default:
		conn = wire.NewConn(transport.NewTCPConnWithReader(nc, reader), wire.WithMaxPayload(s.maxPayload))
	}

	slog.Info("peer_connected",
		"session_id", sid, "remote_addr", nc.RemoteAddr().String(), "transport", proto.String())

	name, ok := s.handshake(sid, conn)
	if !ok {
		conn.Close()
		return
	}

	// Welcome the newcomer directly before the room hears about it; a
	// peer nobody can write to is dropped while it is still invisible.
	if err := conn.Send(protocol.Relay{Sender: serverSender, Text: name + joinedSuffix}); err != nil {
		slog.Warn("join_welcome_failed", "session_id", sid, "error", err)
		conn.Close()
		return
	}

	id := s.nextID.Add(1) - 1
	if !s.hub.Add(id, name, conn) {
		conn.Close()
		return
	}

	slog.Info("peer_joined", "session_id", sid, "peer_id", id, "peer_name", name)

	sess := &session{
		id:      id,
		name:    name,
		sid:     sid,
		conn:    conn,
		hub:     s.hub,
		metrics: s.metrics,
		stop:    s.Stop,
	}
	if s.rateLimit > 0 {
		sess.limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}
	sess.run()
}

// handshake reads the first frame, which must be a Join with a usable
// name. The read runs under whatever is left of the deadline armed in
// handleConn; on the way out the deadline comes off so session reads
// block indefinitely.
func (s *Server) handshake(sid string, conn *wire.Conn) (string, bool) {
	if s.handshakeTimeout > 0 {
		defer conn.SetReadDeadline(time.Time{})
	}

	msg, err := conn.Receive()
	if err != nil {
		slog.Warn("join_handshake_failed", "session_id", sid, "error", err)
		return "", false
	}

	join, ok := msg.(protocol.Join)
	if !ok {
		slog.Warn("join_handshake_rejected", "session_id", sid, "kind", msg.Kind().String())
		return "", false
	}
	if join.Name == "" {
		slog.Warn("join_handshake_rejected", "session_id", sid, "reason", "empty name")
		return "", false
	}
	return join.Name, true
}
