package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/protocol"
)

const (
	readTimeout  = 2 * time.Second
	quietTimeout = 150 * time.Millisecond
)

// newTestConfig binds to a loopback port chosen by the OS and keeps every
// timeout short enough for tests.
func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HandshakeTimeout = readTimeout
	cfg.WriteTimeout = time.Second
	cfg.CloseTimeout = 500 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.RateLimit.Burst = 100
	return cfg
}

func startTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	return startTestServerWithLogger(t, cfg, zap.NewNop().Sugar())
}

func startTestServerWithLogger(t *testing.T, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	t.Helper()
	srv := New(cfg, logger)
	if err := srv.Start(); err != nil {
		t.Fatalf("error starting test server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(cfg.ShutdownTimeout)
	})
	return srv
}

// testClient speaks the line protocol over a raw TCP connection.
type testClient struct {
	t      *testing.T
	name   string
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("error connecting to test server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// join connects and completes the handshake, consuming the welcome line.
func join(t *testing.T, srv *Server, name string) *testClient {
	t.Helper()
	c := dial(t, srv)
	c.name = name
	c.send(name)
	c.expect(protocol.Welcome(name))
	return c
}

// joinAll joins each name in order and drains the join notices that earlier
// clients receive, so every returned client starts with an empty stream.
func joinAll(t *testing.T, srv *Server, names ...string) []*testClient {
	t.Helper()
	var clients []*testClient
	for _, name := range names {
		c := join(t, srv, name)
		for _, earlier := range clients {
			earlier.expect(protocol.Joined(name))
		}
		clients = append(clients, c)
	}
	return clients
}

func (c *testClient) send(line string) {
	c.t.Helper()
	if err := c.conn.SetWriteDeadline(time.Now().Add(readTimeout)); err != nil {
		c.t.Fatalf("error setting write deadline: %v", err)
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		c.t.Fatalf("error writing %q: %v", line, err)
	}
}

func (c *testClient) readLine(timeout time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	got, err := c.readLine(readTimeout)
	if err != nil {
		c.t.Fatalf("%s: error reading line (want %q): %v", c.name, want, err)
	}
	if got != want {
		c.t.Fatalf("%s: want line %q, got %q", c.name, want, got)
	}
}

// expectQuiet fails if anything arrives within quietTimeout.
func (c *testClient) expectQuiet() {
	c.t.Helper()
	line, err := c.readLine(quietTimeout)
	if err == nil {
		c.t.Fatalf("%s: expected no traffic, got %q", c.name, line)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		c.t.Fatalf("%s: expected a read timeout, got %v", c.name, err)
	}
}

// expectClosed reads until the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	for {
		line, err := c.readLine(readTimeout)
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.t.Fatalf("%s: connection still open (last line %q)", c.name, line)
		}
		return
	}
}

// eventually polls cond until it holds or the read timeout passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// fakeTransport is an in-memory Transport for exercising Sessions without sockets.
type fakeTransport struct {
	mu      sync.Mutex
	written []string
	inbound chan string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan string, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadLine() (string, error) {
	select {
	case line, ok := <-f.inbound:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-f.closed:
		return "", net.ErrClosed
	}
}

func (f *fakeTransport) WriteLine(line string) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, line)
	return nil
}

func (f *fakeTransport) SetReadDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "fake:0" }

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// newUnstartedServer returns a Server that has not bound anything but behaves
// as if it were accepting, for tests that drive Sessions directly.
func newUnstartedServer(cfg *config.Config) *Server {
	srv := New(cfg, zap.NewNop().Sugar())
	srv.accepting.Store(true)
	return srv
}

// drain returns every line queued for s without running its writer.
func drain(s *Session) []string {
	var lines []string
	for {
		select {
		case line, ok := <-s.send:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		default:
			return lines
		}
	}
}
