// Package transport provides the byte-stream connections the relay speaks
// over: plain TCP and binary WebSocket presented through one interface.
package transport

import (
	"bufio"
	"io"
	"net"
	"time"
)

// Conn is a byte-stream connection between relay and peer.
type Conn interface {
	// RemoteAddr returns the remote address
	RemoteAddr() net.Addr

	// Write sends bytes to the peer
	Write(data []byte) (int, error)

	// Read receives bytes from the peer
	Read(buf []byte) (int, error)

	// Close closes the connection
	Close() error

	// SetReadDeadline sets the read deadline
	SetReadDeadline(t time.Time) error
}

var (
	_ Conn = (*TCPConn)(nil)
	_ Conn = (*WSConn)(nil)
	_ Conn = (net.Conn)(nil)
)

// TCPConn wraps a net.Conn for plain TCP connections.
type TCPConn struct {
	conn   net.Conn
	reader io.Reader
}

// NewTCPConn creates a new TCPConn.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{
		conn:   conn,
		reader: conn,
	}
}

// NewTCPConnWithReader creates a new TCPConn that reads through a buffered
// reader. This is used when the connection was already peeked at for
// protocol detection and the reader holds the peeked bytes.
func NewTCPConnWithReader(conn net.Conn, reader *bufio.Reader) *TCPConn {
	return &TCPConn{
		conn:   conn,
		reader: reader,
	}
}

func (tc *TCPConn) RemoteAddr() net.Addr {
	return tc.conn.RemoteAddr()
}

func (tc *TCPConn) Write(data []byte) (int, error) {
	return tc.conn.Write(data)
}

func (tc *TCPConn) Read(buf []byte) (int, error) {
	return tc.reader.Read(buf)
}

func (tc *TCPConn) Close() error {
	return tc.conn.Close()
}

func (tc *TCPConn) SetReadDeadline(t time.Time) error {
	return tc.conn.SetReadDeadline(t)
}
