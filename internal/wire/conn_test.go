package wire_test

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/typedwire/relay/internal/wire"
	"github.com/typedwire/relay/pkg/protocol"
)

func newConnPair(t *testing.T) (*wire.Conn, *wire.Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := wire.NewConn(a)
	cb := wire.NewConn(b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConn_SendReceive(t *testing.T) {
	a, b := newConnPair(t)

	go func() {
		a.Send(protocol.Chat{Text: "hello room"})
	}()

	msg, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	chat, ok := msg.(protocol.Chat)
	if !ok {
		t.Fatalf("Receive() = %T, want protocol.Chat", msg)
	}
	if chat.Text != "hello room" {
		t.Errorf("Receive() text = %q, want %q", chat.Text, "hello room")
	}
}

// Concurrent senders share one stream; every received frame must still
// decode cleanly, since a single interleaved write would corrupt the
// stream for everything after it.
func TestConn_ConcurrentSendsStayFramed(t *testing.T) {
	a, b := newConnPair(t)

	const senders = 5
	const perSender = 20

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := a.Send(protocol.Relay{Sender: "writer", Text: "shared stream"}); err != nil {
					t.Errorf("Send() error = %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < senders*perSender; i++ {
		msg, err := b.Receive()
		if err != nil {
			t.Fatalf("Receive() #%d error = %v", i, err)
		}
		if msg.Kind() != protocol.KindRelay {
			t.Fatalf("Receive() #%d kind = %v, want RELAY", i, msg.Kind())
		}
	}
	wg.Wait()
}

func TestConn_CorruptPayload(t *testing.T) {
	raw, peer := net.Pipe()
	defer raw.Close()
	conn := wire.NewConn(peer)
	defer conn.Close()

	go func() {
		wire.WriteFrame(raw, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	}()

	_, err := conn.Receive()
	if !errors.Is(err, wire.ErrCorruptPayload) {
		t.Errorf("Receive() error = %v, want ErrCorruptPayload", err)
	}
}

func TestConn_CleanDisconnect(t *testing.T) {
	raw, peer := net.Pipe()
	conn := wire.NewConn(peer)
	defer conn.Close()

	raw.Close()

	_, err := conn.Receive()
	if !errors.Is(err, wire.ErrCleanDisconnect) {
		t.Errorf("Receive() error = %v, want ErrCleanDisconnect", err)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	_, peer := net.Pipe()
	conn := wire.NewConn(peer)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := conn.Send(protocol.Leave{}); err == nil {
		t.Error("Send() after Close() expected an error")
	}
}

func TestConn_MaxPayloadCap(t *testing.T) {
	a, b := net.Pipe()
	sender := wire.NewConn(a)
	receiver := wire.NewConn(b, wire.WithMaxPayload(16))
	defer sender.Close()
	defer receiver.Close()

	go func() {
		sender.Send(protocol.Chat{Text: "this text does not fit in sixteen bytes"})
	}()

	_, err := receiver.Receive()
	if !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Errorf("Receive() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestConn_WithPrebufferedReader(t *testing.T) {
	raw, peer := net.Pipe()
	defer raw.Close()

	go func() {
		payload, _ := protocol.Marshal(protocol.Leave{})
		wire.WriteFrame(raw, payload)
	}()

	reader := bufio.NewReader(peer)
	if _, err := reader.Peek(4); err != nil {
		t.Fatalf("failed to peek: %v", err)
	}

	conn := wire.NewConn(peer, wire.WithReader(reader))
	defer conn.Close()

	msg, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg.Kind() != protocol.KindLeave {
		t.Errorf("Receive() kind = %v, want LEAVE", msg.Kind())
	}
}

func TestDialAndListen(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()

		msg, err := conn.Receive()
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- conn.Send(msg)
	}()

	conn, err := wire.Dial(ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Send(protocol.Join{Name: "echo"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msg, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	join, ok := msg.(protocol.Join)
	if !ok || join.Name != "echo" {
		t.Errorf("Receive() = %#v, want the echoed join", msg)
	}

	if err := <-serverErr; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
}
