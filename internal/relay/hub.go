// Package relay implements the room: a server that accepts peers over TCP
// or WebSocket on one port, admits them by name, and fans typed messages
// out to everyone else.
package relay

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/typedwire/relay/internal/metrics"
	"github.com/typedwire/relay/internal/wire"
	"github.com/typedwire/relay/pkg/protocol"
)

// serverSender is the display name on notices the relay itself writes.
const serverSender = protocol.ServerSender

// hostID is the peer id of the first join. The host cannot be kicked.
const hostID uint64 = 0

const (
	joinedSuffix = " has joined the room!"
	leftSuffix   = " has left the room"
	kickedSuffix = " was kicked by the host"
)

type hubOp int

const (
	opAdd hubOp = iota
	opRemove
	opRename
	opRelay
	opKick
	opRoster
	opShutdown
)

// hubCmd is one request to the hub goroutine. Which fields matter depends
// on the op; reply, when set, receives exactly one answer.
type hubCmd struct {
	op    hubOp
	id    uint64
	name  string
	text  string
	conn  *wire.Conn
	reply chan hubReply
}

type hubReply struct {
	roster []protocol.PeerInfo
	found  bool
}

type hubPeer struct {
	id   uint64
	name string
	conn *wire.Conn
}

// Hub owns the peer table. All room state lives on one goroutine and is
// reached only through commands, so no lock is ever held across a socket
// write and a stalled peer delays the room, never deadlocks it.
type Hub struct {
	cmds     chan hubCmd
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	metrics  *metrics.Metrics
}

// NewHub creates a hub and starts its run loop. Stop ends it.
func NewHub(m *metrics.Metrics) *Hub {
	h := &Hub{
		cmds:    make(chan hubCmd),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: m,
	}
	go h.run()
	return h
}

// Stop ends the run loop. Commands still queued are abandoned and blocked
// callers are released.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
}

// Add admits a peer: existing peers hear the join notice, then the peer
// joins the table. It reports false when the room is closing or stopped.
func (h *Hub) Add(id uint64, name string, conn *wire.Conn) bool {
	rep, ok := h.call(hubCmd{op: opAdd, id: id, name: name, conn: conn})
	return ok && rep.found
}

// Remove drops a peer and announces the departure. Removing an absent id
// is a no-op, which is what makes duplicate removal paths safe.
func (h *Hub) Remove(id uint64) {
	h.send(hubCmd{op: opRemove, id: id})
}

// Rename changes a peer's display name. No notice goes out; later relays
// and rosters just carry the new name.
func (h *Hub) Rename(id uint64, name string) {
	h.send(hubCmd{op: opRename, id: id, name: name})
}

// Relay fans a chat line out to every peer except the sender.
func (h *Hub) Relay(from uint64, text string) {
	h.send(hubCmd{op: opRelay, id: from, text: text})
}

// Kick ejects a peer: it gets a Kicked message, its connection is closed
// and the room hears who was kicked. Reports whether the peer existed.
func (h *Hub) Kick(id uint64) bool {
	rep, ok := h.call(hubCmd{op: opKick, id: id})
	return ok && rep.found
}

// Roster returns the current peers ordered by id.
func (h *Hub) Roster() []protocol.PeerInfo {
	rep, _ := h.call(hubCmd{op: opRoster})
	return rep.roster
}

// ShutdownAll broadcasts Shutdown to every peer, closes their connections
// and empties the table. Adds after this are refused.
func (h *Hub) ShutdownAll() {
	h.call(hubCmd{op: opShutdown})
}

// send enqueues a command without waiting for an answer.
func (h *Hub) send(cmd hubCmd) {
	select {
	case h.cmds <- cmd:
	case <-h.quit:
	}
}

// call enqueues a command and waits for the hub's answer.
func (h *Hub) call(cmd hubCmd) (hubReply, bool) {
	reply := make(chan hubReply, 1)
	cmd.reply = reply

	select {
	case h.cmds <- cmd:
	case <-h.quit:
		return hubReply{}, false
	}

	select {
	case rep := <-reply:
		return rep, true
	case <-h.done:
		// The run loop never exits mid-command, so a closed done either
		// means the command was handled (reply is waiting) or never
		// dequeued at all.
		select {
		case rep := <-reply:
			return rep, true
		default:
			return hubReply{}, false
		}
	}
}

func (h *Hub) run() {
	defer close(h.done)

	peers := make(map[uint64]*hubPeer)
	closing := false

	for {
		select {
		case <-h.quit:
			return
		case cmd := <-h.cmds:
			var rep hubReply
			switch cmd.op {
			case opAdd:
				if closing {
					break
				}
				h.deliver(peers, protocol.Relay{Sender: serverSender, Text: cmd.name + joinedSuffix}, cmd.id)
				peers[cmd.id] = &hubPeer{id: cmd.id, name: cmd.name, conn: cmd.conn}
				h.metrics.SetActivePeers(len(peers))
				rep.found = true

			case opRemove:
				p, ok := peers[cmd.id]
				if ok {
					delete(peers, cmd.id)
					h.metrics.SetActivePeers(len(peers))
					if !closing {
						h.deliver(peers, protocol.Relay{Sender: serverSender, Text: p.name + leftSuffix}, cmd.id)
					}
				}
				rep.found = ok

			case opRename:
				if p, ok := peers[cmd.id]; ok {
					p.name = cmd.name
				}

			case opRelay:
				p, ok := peers[cmd.id]
				if !ok {
					break
				}
				h.deliver(peers, protocol.Relay{Sender: p.name, Text: cmd.text}, cmd.id)
				h.metrics.RecordRelayed()

			case opKick:
				p, ok := peers[cmd.id]
				if ok {
					if err := p.conn.Send(protocol.Kicked{}); err != nil {
						slog.Warn("kicked_notice_failed", "peer_id", p.id, "error", err)
					}
					p.conn.Close()
					delete(peers, cmd.id)
					h.metrics.SetActivePeers(len(peers))
					h.deliver(peers, protocol.Relay{Sender: serverSender, Text: p.name + kickedSuffix}, cmd.id)
				}
				rep.found = ok

			case opRoster:
				roster := make([]protocol.PeerInfo, 0, len(peers))
				for _, p := range peers {
					roster = append(roster, protocol.PeerInfo{ID: p.id, Name: p.name})
				}
				sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
				rep.roster = roster

			case opShutdown:
				closing = true
				for _, p := range peers {
					if err := p.conn.Send(protocol.Shutdown{}); err != nil {
						slog.Warn("shutdown_notice_failed", "peer_id", p.id, "error", err)
					}
				}
				for _, p := range peers {
					p.conn.Close()
				}
				peers = make(map[uint64]*hubPeer)
				h.metrics.SetActivePeers(0)
			}

			if cmd.reply != nil {
				cmd.reply <- rep
			}
		}
	}
}

// deliver sends msg to every peer except the excluded id. A failed send
// drops that peer quietly: its connection is closed, which also unblocks
// its reader, and delivery to the rest continues. The explicit Leave path
// is the only source of departure notices, so duplicate removal later is
// a no-op.
func (h *Hub) deliver(peers map[uint64]*hubPeer, msg protocol.Message, exclude uint64) {
	var failed []uint64
	for id, p := range peers {
		if id == exclude {
			continue
		}
		if err := p.conn.Send(msg); err != nil {
			slog.Warn("broadcast_send_failed", "peer_id", id, "peer_name", p.name, "error", err)
			h.metrics.RecordBroadcastError()
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		peers[id].conn.Close()
		delete(peers, id)
	}
	if len(failed) > 0 {
		h.metrics.SetActivePeers(len(peers))
	}
}
