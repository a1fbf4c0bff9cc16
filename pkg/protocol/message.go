// Package protocol defines the typed messages exchanged between the relay
// and its peers, and their wire encoding.
package protocol

// ServerSender is the sender name on Relay notices written by the relay
// itself rather than by a peer.
const ServerSender = "[server]"

// Kind identifies a message variant on the wire.
type Kind int

const (
	KindJoin Kind = iota + 1
	KindChat
	KindLeave
	KindRename
	KindKick
	KindListPeers
	KindShutdown
	KindRelay
	KindKicked
	KindPeerList
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "JOIN"
	case KindChat:
		return "CHAT"
	case KindLeave:
		return "LEAVE"
	case KindRename:
		return "RENAME"
	case KindKick:
		return "KICK"
	case KindListPeers:
		return "LIST_PEERS"
	case KindShutdown:
		return "SHUTDOWN"
	case KindRelay:
		return "RELAY"
	case KindKicked:
		return "KICKED"
	case KindPeerList:
		return "PEER_LIST"
	default:
		return "UNKNOWN"
	}
}

// Message is the closed set of values that cross the wire. Peers send Join,
// Chat, Leave, Rename, Kick, ListPeers and Shutdown; the relay sends Relay,
// Shutdown, Kicked and PeerList. Messages are immutable values; receivers
// dispatch on the concrete type.
type Message interface {
	// Kind reports which variant this message is.
	Kind() Kind

	isMessage()
}

// Join asks the relay to admit the sender under the given name. It must be
// the first message on a new connection.
type Join struct {
	Name string
}

// Chat carries a line of text for the room.
type Chat struct {
	Text string
}

// Leave announces an orderly departure.
type Leave struct{}

// Rename changes the sender's display name.
type Rename struct {
	Name string
}

// Kick asks the relay to eject the peer with the given id.
type Kick struct {
	Peer uint64
}

// ListPeers requests the current roster.
type ListPeers struct{}

// Shutdown closes the room. A peer sends it to request the close; the relay
// broadcasts it when the close happens.
type Shutdown struct{}

// Relay is a line of text fanned out to the room, tagged with the sender's
// display name.
type Relay struct {
	Sender string
	Text   string
}

// Kicked tells a peer it has been ejected from the room.
type Kicked struct{}

// PeerInfo is one roster entry.
type PeerInfo struct {
	ID   uint64
	Name string
}

// PeerList is the roster reply to ListPeers.
type PeerList struct {
	Peers []PeerInfo
}

func (Join) Kind() Kind      { return KindJoin }
func (Chat) Kind() Kind      { return KindChat }
func (Leave) Kind() Kind     { return KindLeave }
func (Rename) Kind() Kind    { return KindRename }
func (Kick) Kind() Kind      { return KindKick }
func (ListPeers) Kind() Kind { return KindListPeers }
func (Shutdown) Kind() Kind  { return KindShutdown }
func (Relay) Kind() Kind     { return KindRelay }
func (Kicked) Kind() Kind    { return KindKicked }
func (PeerList) Kind() Kind  { return KindPeerList }

func (Join) isMessage()      {}
func (Chat) isMessage()      {}
func (Leave) isMessage()     {}
func (Rename) isMessage()    {}
func (Kick) isMessage()      {}
func (ListPeers) isMessage() {}
func (Shutdown) isMessage()  {}
func (Relay) isMessage()     {}
func (Kicked) isMessage()    {}
func (PeerList) isMessage()  {}
