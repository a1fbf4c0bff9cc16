package relay

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/typedwire/relay/internal/metrics"
	"github.com/typedwire/relay/internal/wire"
	"github.com/typedwire/relay/pkg/protocol"
)

// session is one admitted peer: its connection, its registry identity and
// the dispatch loop that drains its messages.
type session struct {
	id      uint64
	name    string
	sid     string
	conn    *wire.Conn
	hub     *Hub
	limiter *rate.Limiter
	metrics *metrics.Metrics
	stop    func()
}

// run dispatches incoming messages until the connection dies, the peer
// leaves, or the room shuts down. Whatever ends the loop, the peer comes
// out of the registry exactly once; the shutdown path skips removal
// because the hub has already cleared the table.
func (s *session) run() {
	defer s.conn.Close()

loop:
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.logDisconnect(err)
			break
		}

		if s.limiter != nil && !s.limiter.Allow() {
			slog.Warn("rate_limit_exceeded",
				"session_id", s.sid, "peer_id", s.id, "kind", msg.Kind().String())
			s.metrics.RecordRateLimited()
			continue
		}

		switch m := msg.(type) {
		case protocol.Chat:
			s.hub.Relay(s.id, m.Text)

		case protocol.Leave:
			slog.Info("peer_left", "session_id", s.sid, "peer_id", s.id)
			break loop

		case protocol.Rename:
			slog.Info("peer_renamed", "session_id", s.sid, "peer_id", s.id, "peer_name", m.Name)
			s.hub.Rename(s.id, m.Name)

		case protocol.Kick:
			if m.Peer == hostID {
				slog.Warn("kick_refused", "session_id", s.sid, "peer_id", s.id, "target", m.Peer)
				if !s.reply(protocol.Relay{Sender: serverSender, Text: "You cannot kick the host"}) {
					break loop
				}
				continue
			}
			if !s.hub.Kick(m.Peer) {
				if !s.reply(protocol.Relay{Sender: serverSender, Text: fmt.Sprintf("There is no peer with id %d", m.Peer)}) {
					break loop
				}
			}

		case protocol.ListPeers:
			if !s.reply(protocol.PeerList{Peers: s.hub.Roster()}) {
				break loop
			}

		case protocol.Shutdown:
			slog.Info("shutdown_requested", "session_id", s.sid, "peer_id", s.id)
			// Broadcast from here, while this connection is still open,
			// so the requester gets its own Shutdown frame before the
			// deferred close. The table is empty afterwards, making the
			// broadcast inside Stop a no-op. Stop itself waits for every
			// session goroutine, this one included, so it has to run
			// from the side.
			s.hub.ShutdownAll()
			go s.stop()
			return

		default:
			slog.Warn("unexpected_message", "session_id", s.sid, "peer_id", s.id, "kind", msg.Kind().String())
		}
	}

	s.hub.Remove(s.id)
}

// reply sends a message straight back to this peer from the session
// goroutine. This is safe against a concurrent hub broadcast because frame
// atomicity lives in the connection's write mutex, not in hub scheduling.
func (s *session) reply(msg protocol.Message) bool {
	if err := s.conn.Send(msg); err != nil {
		slog.Warn("direct_reply_failed", "session_id", s.sid, "peer_id", s.id, "error", err)
		return false
	}
	return true
}

func (s *session) logDisconnect(err error) {
	switch {
	case errors.Is(err, wire.ErrCleanDisconnect):
		slog.Info("peer_disconnected", "session_id", s.sid, "peer_id", s.id)
	case errors.Is(err, wire.ErrCorruptPayload),
		errors.Is(err, wire.ErrTruncatedFrame),
		errors.Is(err, wire.ErrFrameTooLarge):
		s.metrics.RecordDecodeError()
		slog.Warn("undecodable_input", "session_id", s.sid, "peer_id", s.id, "error", err)
	default:
		slog.Warn("read_failed", "session_id", s.sid, "peer_id", s.id, "error", err)
	}
}
