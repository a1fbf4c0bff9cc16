package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type wsSide int

const (
	wsServerSide wsSide = iota
	wsClientSide
)

// WSConn wraps a net.Conn carrying WebSocket frames and presents the binary
// messages as a plain byte stream.
type WSConn struct {
	conn net.Conn
	rw   io.ReadWriter
	side wsSide

	readBuffer    []byte
	readBufferPos int
	readMu        sync.Mutex

	// writeMu serializes every write to the socket, including the pong
	// and close replies wsutil issues from inside Read.
	writeMu sync.Mutex
}

// UpgradeWS performs the server side of the WebSocket handshake on a
// connection whose first bytes sit in the buffered reader from protocol
// detection. Frames are read through the same reader afterwards so nothing
// buffered is lost.
func UpgradeWS(conn net.Conn, reader *bufio.Reader) (*WSConn, error) {
	if _, err := ws.Upgrade(readWriter{r: reader, w: conn}); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	wc := &WSConn{conn: conn, side: wsServerSide}
	wc.rw = readWriter{r: reader, w: lockedWriter{mu: &wc.writeMu, w: conn}}
	return wc, nil
}

// DialWS connects to a WebSocket endpoint and returns the stream adapter
// for it.
func DialWS(ctx context.Context, url string) (*WSConn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	var r io.Reader = conn
	if br != nil {
		// The handshake read past the HTTP response; drain the leftover
		// bytes before touching the connection again.
		r = br
	}
	wc := &WSConn{conn: conn, side: wsClientSide}
	wc.rw = readWriter{r: r, w: lockedWriter{mu: &wc.writeMu, w: conn}}
	return wc, nil
}

func (wc *WSConn) RemoteAddr() net.Addr {
	return wc.conn.RemoteAddr()
}

func (wc *WSConn) Write(data []byte) (int, error) {
	// Hold the lock across the whole message: header and payload go out
	// as separate writes, and a pong from the read path must not land
	// between them.
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()

	var err error
	if wc.side == wsServerSide {
		err = wsutil.WriteServerBinary(wc.conn, data)
	} else {
		err = wsutil.WriteClientBinary(wc.conn, data)
	}
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (wc *WSConn) Read(buf []byte) (int, error) {
	wc.readMu.Lock()
	defer wc.readMu.Unlock()

	// Return buffered data if available
	if wc.readBufferPos < len(wc.readBuffer) {
		n := copy(buf, wc.readBuffer[wc.readBufferPos:])
		wc.readBufferPos += n
		if wc.readBufferPos >= len(wc.readBuffer) {
			wc.readBuffer = nil
			wc.readBufferPos = 0
		}
		return n, nil
	}

	// Read the next binary message
	var data []byte
	var err error
	if wc.side == wsServerSide {
		data, err = wsutil.ReadClientBinary(wc.rw)
	} else {
		data, err = wsutil.ReadServerBinary(wc.rw)
	}
	if err != nil {
		return 0, err
	}

	n := copy(buf, data)
	if n < len(data) {
		// Buffer what did not fit
		wc.readBuffer = data[n:]
		wc.readBufferPos = 0
	}

	return n, nil
}

func (wc *WSConn) Close() error {
	// Send close frame
	wc.writeMu.Lock()
	if wc.side == wsServerSide {
		_ = wsutil.WriteServerMessage(wc.conn, ws.OpClose, nil)
	} else {
		_ = wsutil.WriteClientMessage(wc.conn, ws.OpClose, nil)
	}
	wc.writeMu.Unlock()
	return wc.conn.Close()
}

func (wc *WSConn) SetReadDeadline(t time.Time) error {
	return wc.conn.SetReadDeadline(t)
}

// readWriter pairs the handshake's buffered reader with the raw connection
// for writes.
type readWriter struct {
	r io.Reader
	w io.Writer
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// lockedWriter is the write half handed to wsutil's read helpers. Control
// replies arrive here as one assembled frame per call, so taking the
// mutex per write keeps them whole against a concurrent data frame.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
