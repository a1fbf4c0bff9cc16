package relay

import (
	"bufio"
	"bytes"
	"testing"
)

func TestDetectProtocol(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  streamProtocol
	}{
		{"get request", []byte("GET /chat HTTP/1.1\r\n"), streamWebSocket},
		{"post request", []byte("POST / HTTP/1.1\r\n"), streamWebSocket},
		{"put request", []byte("PUT / HTTP/1.1\r\n"), streamWebSocket},
		{"head request", []byte("HEAD / HTTP/1.1\r\n"), streamWebSocket},
		{"frame header", []byte{0, 0, 0, 0, 0, 0, 0, 4}, streamTCP},
		{"arbitrary bytes", []byte("\x08\x01ab"), streamTCP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectProtocol(bufio.NewReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("detectProtocol() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("detectProtocol() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectProtocol_ShortStream(t *testing.T) {
	if _, err := detectProtocol(bufio.NewReader(bytes.NewReader([]byte("GE")))); err == nil {
		t.Fatal("detectProtocol() accepted a stream shorter than one prefix")
	}
}

func TestDetectProtocol_DoesNotConsume(t *testing.T) {
	input := []byte("GET /chat HTTP/1.1\r\n")
	reader := bufio.NewReader(bytes.NewReader(input))
	if _, err := detectProtocol(reader); err != nil {
		t.Fatalf("detectProtocol() error = %v", err)
	}

	rest := make([]byte, len(input))
	if _, err := reader.Read(rest); err != nil {
		t.Fatalf("Read() after detection failed: %v", err)
	}
	if !bytes.Equal(rest, input) {
		t.Errorf("stream after detection = %q, want %q", rest, input)
	}
}
