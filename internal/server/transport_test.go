package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestTCPTransportReadLine(t *testing.T) {
	server, client := net.Pipe()
	defer func() { _ = client.Close() }()
	tr := newTCPTransport(server, 16, time.Second)
	defer func() { _ = tr.Close() }()

	go func() {
		_, _ = io.WriteString(client, "hello\r\nworld\n"+strings.Repeat("x", 40)+"\n")
	}()

	for _, want := range []string{"hello", "world"} {
		got, err := tr.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine returned %v", err)
		}
		if got != want {
			t.Errorf("ReadLine() = %q, want %q", got, want)
		}
	}

	if _, err := tr.ReadLine(); !errors.Is(err, ErrTransportFailure) {
		t.Errorf("oversized ReadLine error = %v, want ErrTransportFailure", err)
	}
}

func TestTCPTransportEOF(t *testing.T) {
	server, client := net.Pipe()
	tr := newTCPTransport(server, 16, time.Second)
	_ = client.Close()

	_, err := tr.ReadLine()
	if !isExpectedCloseError(err) {
		t.Errorf("ReadLine after peer close = %v, want an expected close error", err)
	}
}

func TestTCPTransportWriteLine(t *testing.T) {
	server, client := net.Pipe()
	defer func() { _ = client.Close() }()
	tr := newTCPTransport(server, 16, time.Second)
	defer func() { _ = tr.Close() }()

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		received <- string(buf[:n])
	}()

	if err := tr.WriteLine("Me: hi"); err != nil {
		t.Fatalf("WriteLine returned %v", err)
	}
	select {
	case got := <-received:
		if got != "Me: hi\n" {
			t.Errorf("peer received %q", got)
		}
	case <-time.After(readTimeout):
		t.Fatal("peer received nothing")
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{io.EOF, true},
		{net.ErrClosed, true},
		{errors.New("write tcp: broken pipe"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{ErrTransportFailure, false},
		{errors.New("i/o timeout"), false},
	}

	for _, tt := range tests {
		if got := isExpectedCloseError(tt.err); got != tt.want {
			t.Errorf("isExpectedCloseError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
