package wire

import (
	"fmt"
	"net"
)

// Dial connects to a relay endpoint over plain TCP.
func Dial(addr string, opts ...Option) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(nc, opts...), nil
}

// Listener accepts framed-message connections over plain TCP.
type Listener struct {
	ln   net.Listener
	opts []Option
}

// Listen binds a TCP listener for framed connections.
func Listen(addr string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Listener{ln: ln, opts: opts}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc, l.opts...), nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the listener. Connections already accepted stay open.
func (l *Listener) Close() error {
	return l.ln.Close()
}
