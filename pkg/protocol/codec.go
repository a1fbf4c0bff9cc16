package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope layout: field 1 is always the kind varint, fields 2 and 3 carry
// the variant payload. PeerList packs each roster entry as a nested message
// in repeated field 2.
const (
	fieldKind   protowire.Number = 1
	fieldFirst  protowire.Number = 2
	fieldSecond protowire.Number = 3

	peerFieldID   protowire.Number = 1
	peerFieldName protowire.Number = 2
)

var (
	// ErrUnknownKind reports a payload whose kind tag names no known variant.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformed reports a payload that does not parse as a message envelope.
	ErrMalformed = errors.New("malformed message payload")
)

// Marshal encodes a message into its envelope bytes.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot marshal nil message")
	}

	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))

	switch v := m.(type) {
	case Join:
		b = appendStringField(b, fieldFirst, v.Name)
	case Chat:
		b = appendStringField(b, fieldFirst, v.Text)
	case Rename:
		b = appendStringField(b, fieldFirst, v.Name)
	case Kick:
		b = protowire.AppendTag(b, fieldFirst, protowire.VarintType)
		b = protowire.AppendVarint(b, v.Peer)
	case Relay:
		b = appendStringField(b, fieldFirst, v.Sender)
		b = appendStringField(b, fieldSecond, v.Text)
	case PeerList:
		for _, p := range v.Peers {
			entry := protowire.AppendTag(nil, peerFieldID, protowire.VarintType)
			entry = protowire.AppendVarint(entry, p.ID)
			entry = appendStringField(entry, peerFieldName, p.Name)
			b = protowire.AppendTag(b, fieldFirst, protowire.BytesType)
			b = protowire.AppendBytes(b, entry)
		}
	case Leave, ListPeers, Shutdown, Kicked:
		// kind tag only
	default:
		return nil, fmt.Errorf("cannot marshal message kind %v", m.Kind())
	}

	return b, nil
}

// Unmarshal decodes envelope bytes into a message. Decoding is strict: a
// missing or unknown kind, a wrong field layout, or trailing bytes are all
// errors, so a payload either yields exactly one well-formed message or
// fails.
func Unmarshal(data []byte) (Message, error) {
	kind, rest, err := consumeKind(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch kind {
	case KindJoin:
		name, rem, err := consumeStringField(rest, fieldFirst)
		if err != nil {
			return nil, err
		}
		msg, rest = Join{Name: name}, rem
	case KindChat:
		text, rem, err := consumeStringField(rest, fieldFirst)
		if err != nil {
			return nil, err
		}
		msg, rest = Chat{Text: text}, rem
	case KindLeave:
		msg = Leave{}
	case KindRename:
		name, rem, err := consumeStringField(rest, fieldFirst)
		if err != nil {
			return nil, err
		}
		msg, rest = Rename{Name: name}, rem
	case KindKick:
		id, rem, err := consumeUintField(rest, fieldFirst)
		if err != nil {
			return nil, err
		}
		msg, rest = Kick{Peer: id}, rem
	case KindListPeers:
		msg = ListPeers{}
	case KindShutdown:
		msg = Shutdown{}
	case KindRelay:
		sender, rem, err := consumeStringField(rest, fieldFirst)
		if err != nil {
			return nil, err
		}
		text, rem, err := consumeStringField(rem, fieldSecond)
		if err != nil {
			return nil, err
		}
		msg, rest = Relay{Sender: sender, Text: text}, rem
	case KindKicked:
		msg = Kicked{}
	case KindPeerList:
		var peers []PeerInfo
		for len(rest) > 0 {
			entry, rem, err := consumeBytesField(rest, fieldFirst)
			if err != nil {
				return nil, err
			}
			p, err := unmarshalPeerInfo(entry)
			if err != nil {
				return nil, err
			}
			peers = append(peers, p)
			rest = rem
		}
		msg = PeerList{Peers: peers}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %v payload", ErrMalformed, len(rest), msg.Kind())
	}
	return msg, nil
}

func consumeKind(b []byte) (Kind, []byte, error) {
	rest, err := consumeTag(b, fieldKind, protowire.VarintType)
	if err != nil {
		return 0, nil, err
	}
	v, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return Kind(v), rest[n:], nil
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func consumeStringField(b []byte, want protowire.Number) (string, []byte, error) {
	rest, err := consumeTag(b, want, protowire.BytesType)
	if err != nil {
		return "", nil, err
	}
	s, n := protowire.ConsumeString(rest)
	if n < 0 {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return s, rest[n:], nil
}

func consumeUintField(b []byte, want protowire.Number) (uint64, []byte, error) {
	rest, err := consumeTag(b, want, protowire.VarintType)
	if err != nil {
		return 0, nil, err
	}
	v, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return v, rest[n:], nil
}

func consumeBytesField(b []byte, want protowire.Number) ([]byte, []byte, error) {
	rest, err := consumeTag(b, want, protowire.BytesType)
	if err != nil {
		return nil, nil, err
	}
	v, n := protowire.ConsumeBytes(rest)
	if n < 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return v, rest[n:], nil
}

func consumeTag(b []byte, want protowire.Number, wantType protowire.Type) ([]byte, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	if num != want || typ != wantType {
		return nil, fmt.Errorf("%w: unexpected field %d (wire type %d)", ErrMalformed, num, typ)
	}
	return b[n:], nil
}

func unmarshalPeerInfo(b []byte) (PeerInfo, error) {
	id, rest, err := consumeUintField(b, peerFieldID)
	if err != nil {
		return PeerInfo{}, err
	}
	name, rest, err := consumeStringField(rest, peerFieldName)
	if err != nil {
		return PeerInfo{}, err
	}
	if len(rest) != 0 {
		return PeerInfo{}, fmt.Errorf("%w: trailing bytes in roster entry", ErrMalformed)
	}
	return PeerInfo{ID: id, Name: name}, nil
}
