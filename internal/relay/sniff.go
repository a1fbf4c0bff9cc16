package relay

import (
	"bufio"
	"bytes"
)

type streamProtocol int

const (
	streamTCP streamProtocol = iota
	streamWebSocket
)

func (p streamProtocol) String() string {
	if p == streamWebSocket {
		return "websocket"
	}
	return "tcp"
}

// detectProtocol peeks at the first bytes to tell a WebSocket handshake
// from raw framed traffic. HTTP requests start with a method name; a frame
// starts with a big-endian length whose leading bytes are zero for any
// sane payload, so the two never collide.
func detectProtocol(reader *bufio.Reader) (streamProtocol, error) {
	peek, err := reader.Peek(4)
	if err != nil {
		return streamTCP, err
	}

	if bytes.HasPrefix(peek, []byte("GET ")) ||
		bytes.HasPrefix(peek, []byte("POST")) ||
		bytes.HasPrefix(peek, []byte("PUT ")) ||
		bytes.HasPrefix(peek, []byte("HEAD")) {
		return streamWebSocket, nil
	}

	return streamTCP, nil
}
