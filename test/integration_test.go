package test

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/typedwire/relay/internal/client"
	"github.com/typedwire/relay/internal/relay"
	"github.com/typedwire/relay/pkg/protocol"
)

func startRelay(t *testing.T) (*relay.Server, string) {
	t.Helper()

	srv := relay.New("127.0.0.1:0")
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	addr := srv.Addr()
	if addr == "" {
		t.Fatal("server did not start listening")
	}
	t.Cleanup(func() {
		srv.Stop()
		<-errCh
	})
	return srv, addr
}

// join connects a client, joins the room and swallows the welcome notice.
func join(t *testing.T, addr, name string, tr client.Transport) *client.Client {
	t.Helper()

	c := client.New(addr, name, tr)
	if err := c.Connect(); err != nil {
		t.Fatalf("%s failed to connect: %v", name, err)
	}
	t.Cleanup(c.Disconnect)

	if err := c.Join(); err != nil {
		t.Fatalf("%s failed to join: %v", name, err)
	}

	got := nextRelayFrom(t, c, protocol.ServerSender)
	if got.Text != name+" has joined the room!" {
		t.Fatalf("welcome for %s = %q", name, got.Text)
	}
	return c
}

// nextRelayFrom reads messages until one is a Relay from the given sender.
func nextRelayFrom(t *testing.T, c *client.Client, sender string) protocol.Relay {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				t.Fatal("messages channel closed")
			}
			if r, isRelay := msg.(protocol.Relay); isRelay && r.Sender == sender {
				return r
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a message from %s", sender)
		}
	}
}

func nextPeerList(t *testing.T, c *client.Client) protocol.PeerList {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				t.Fatal("messages channel closed")
			}
			if list, isList := msg.(protocol.PeerList); isList {
				return list
			}
		case <-deadline:
			t.Fatal("timed out waiting for the roster")
		}
	}
}

func waitClosed(t *testing.T, c *client.Client) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Messages():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("messages channel did not close")
		}
	}
}

func assertSilent(t *testing.T, c *client.Client) {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if ok {
			t.Fatalf("unexpected message %v", msg)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIntegration_ChatAcrossTransports(t *testing.T) {
	srv, addr := startRelay(t)

	host := join(t, addr, "host", client.TCP)
	tcpPeer := join(t, addr, "nadia", client.TCP)
	wsPeer := join(t, addr, "miguel", client.WebSocket)

	if got := nextRelayFrom(t, host, protocol.ServerSender); got.Text != "nadia has joined the room!" {
		t.Errorf("host saw %q", got.Text)
	}
	if got := nextRelayFrom(t, host, protocol.ServerSender); got.Text != "miguel has joined the room!" {
		t.Errorf("host saw %q", got.Text)
	}
	if got := srv.PeerCount(); got != 3 {
		t.Errorf("PeerCount() = %d, want 3", got)
	}

	if err := tcpPeer.Chat("hello from tcp"); err != nil {
		t.Fatalf("Chat() failed: %v", err)
	}
	for _, c := range []*client.Client{host, wsPeer} {
		if got := nextRelayFrom(t, c, "nadia"); got.Text != "hello from tcp" {
			t.Errorf("received %q, want %q", got.Text, "hello from tcp")
		}
	}

	if err := wsPeer.Chat("hello from websocket"); err != nil {
		t.Fatalf("Chat() failed: %v", err)
	}
	for _, c := range []*client.Client{host, tcpPeer} {
		if got := nextRelayFrom(t, c, "miguel"); got.Text != "hello from websocket" {
			t.Errorf("received %q, want %q", got.Text, "hello from websocket")
		}
	}
}

func TestIntegration_RoomLifecycle(t *testing.T) {
	_, addr := startRelay(t)

	host := join(t, addr, "host", client.TCP)
	second := join(t, addr, "second", client.TCP)
	third := join(t, addr, "third", client.TCP)

	nextRelayFrom(t, host, protocol.ServerSender) // second joined
	nextRelayFrom(t, host, protocol.ServerSender) // third joined
	nextRelayFrom(t, second, protocol.ServerSender)

	// A rename shows up in later rosters without any announcement.
	if err := second.Rename("renamed"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if err := second.ListPeers(); err != nil {
		t.Fatalf("ListPeers() failed: %v", err)
	}
	roster := nextPeerList(t, second)
	wantRoster := protocol.PeerList{Peers: []protocol.PeerInfo{
		{ID: 0, Name: "host"},
		{ID: 1, Name: "renamed"},
		{ID: 2, Name: "third"},
	}}
	if !reflect.DeepEqual(roster, wantRoster) {
		t.Errorf("roster = %v, want %v", roster, wantRoster)
	}

	// Kicking throws the target out and tells the room.
	if err := host.Kick(2); err != nil {
		t.Fatalf("Kick() failed: %v", err)
	}
	deadline := time.After(2 * time.Second)
	select {
	case msg := <-third.Messages():
		if msg != (protocol.Kicked{}) {
			t.Errorf("third received %v, want Kicked", msg)
		}
	case <-deadline:
		t.Fatal("third never heard about the kick")
	}
	waitClosed(t, third)
	if got := nextRelayFrom(t, host, protocol.ServerSender); got.Text != "third was kicked by the host" {
		t.Errorf("host saw %q", got.Text)
	}
	if got := nextRelayFrom(t, second, protocol.ServerSender); got.Text != "third was kicked by the host" {
		t.Errorf("second saw %q", got.Text)
	}

	// Leaving announces the departure under the current name.
	if err := second.Leave(); err != nil {
		t.Fatalf("Leave() failed: %v", err)
	}
	if got := nextRelayFrom(t, host, protocol.ServerSender); got.Text != "renamed has left the room" {
		t.Errorf("host saw %q", got.Text)
	}

	// Shutdown ends the room for whoever is left, the requester included.
	if err := host.Shutdown(); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	select {
	case msg, ok := <-host.Messages():
		if !ok {
			t.Fatal("channel closed before the shutdown notice")
		}
		if msg != (protocol.Shutdown{}) {
			t.Errorf("host received %v, want Shutdown", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the shutdown notice")
	}
	waitClosed(t, host)
}

func TestIntegration_BroadcastReachesEveryPeer(t *testing.T) {
	srv, addr := startRelay(t)

	peers := make([]*client.Client, 5)
	for i := range peers {
		peers[i] = join(t, addr, fmt.Sprintf("user%d", i), client.TCP)
	}

	// The first peer hears every later join, which also means every admit
	// has landed before we count.
	for i := 1; i < len(peers); i++ {
		nextRelayFrom(t, peers[0], protocol.ServerSender)
	}
	if got := srv.PeerCount(); got != 5 {
		t.Errorf("PeerCount() = %d, want 5", got)
	}

	if err := peers[0].Chat("broadcast"); err != nil {
		t.Fatalf("Chat() failed: %v", err)
	}
	for i := 1; i < len(peers); i++ {
		if got := nextRelayFrom(t, peers[i], "user0"); got.Text != "broadcast" {
			t.Errorf("peer %d received %q", i, got.Text)
		}
	}
	assertSilent(t, peers[0])
}
