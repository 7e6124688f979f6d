package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a connected peer consumed as newline-delimited text lines.
// ReadLine is only ever called from the connection's own goroutine and
// WriteLine only from its writer, so implementations need not serialize them.
type Transport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// tcpTransport frames a raw byte stream into lines.
type tcpTransport struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	maxLineSize  int
	writeTimeout time.Duration
}

func newTCPTransport(conn net.Conn, maxLineSize int, writeTimeout time.Duration) *tcpTransport {
	scanner := bufio.NewScanner(conn)
	// Leave room for the "\r\n" terminator on top of the payload limit. The
	// scanner accepts tokens up to cap(buf), so the buffer must not start larger.
	scanner.Buffer(make([]byte, 0, min(1024, maxLineSize+2)), maxLineSize+2)

	return &tcpTransport{
		conn:         conn,
		scanner:      scanner,
		maxLineSize:  maxLineSize,
		writeTimeout: writeTimeout,
	}
}

func (t *tcpTransport) ReadLine() (string, error) {
	if t.scanner.Scan() {
		return strings.TrimSuffix(t.scanner.Text(), "\r"), nil
	}
	if err := t.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrTransportFailure, t.maxLineSize)
		}
		return "", err
	}
	return "", io.EOF
}

func (t *tcpTransport) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(t.conn, line+"\n")
	return err
}

func (t *tcpTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *tcpTransport) Close() error { return t.conn.Close() }
func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// wsTransport carries one protocol line per WebSocket text frame.
type wsTransport struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func newWSTransport(conn *websocket.Conn, addr string, maxLineSize int, writeTimeout time.Duration) *wsTransport {
	conn.SetReadLimit(int64(maxLineSize))
	return &wsTransport{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
	}
}

func (t *wsTransport) ReadLine() (string, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", fmt.Errorf("%w: %v", ErrTransportFailure, err)
			}
			return "", err
		}
		// Binary and other frames have no meaning in the chat protocol.
		if messageType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

// Close sends a best-effort close frame before dropping the connection.
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string { return t.addr }

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
