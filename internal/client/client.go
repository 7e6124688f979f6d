// Package client implements the interactive chat client: it joins a server
// under a display name, relays the user's lines and, when the connection
// drops, offers to reconnect a bounded number of times.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/linechat/internal/protocol"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

// Dialer opens connections to the server. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config describes the server to join and how hard to retry. Unset limits
// take the defaults; a zero RetryDelay retries immediately.
type Config struct {
	// Addr is the host:port every attempt dials, including reconnects.
	Addr string
	// Name is sent as the handshake on every connection.
	Name        string
	MaxAttempts int
	RetryDelay  time.Duration
	DialTimeout time.Duration
}

// Client runs one chat session with reconnection. It is not safe to call Run
// more than once.
type Client struct {
	cfg    Config
	dialer Dialer
	input  <-chan string
	out    *Console
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	attempts int
	greeted  bool
}

// New creates a Client reading the user's lines from input. Zero values in cfg
// fall back to the package defaults.
func New(cfg Config, dialer Dialer, input <-chan string, out *Console, logger *zap.SugaredLogger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		input:  input,
		out:    out,
		logger: logger,
		now:    time.Now,
		state:  StateDisconnected,
	}
}

// State returns where the client currently is in its lifecycle.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts made since the last
// successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debugw("client state changed", "from", prev, "to", s)
	}
}

// Run connects, joins and relays traffic until the user quits, the server
// rejects the client, reconnection is given up, or ctx is cancelled.
//
// A failure of the first connection is returned as ErrConnect without any
// retries. A voluntary quit returns nil.
func (c *Client) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %s: %v", ErrConnect, c.cfg.Addr, err)
	}
	c.out.Info("Connected to the server.")

	for {
		err := c.serve(ctx, conn)
		switch {
		case err == nil:
			c.setState(StateClosed)
			c.out.Warn("You have left the chat.")
			return nil
		case errors.Is(err, ErrRejected), ctx.Err() != nil:
			c.setState(StateClosed)
			return err
		}

		c.logger.Debugw("connection lost", "error", err)
		c.setState(StateReconnecting)
		conn, err = c.reconnect(ctx)
		if err != nil {
			if errors.Is(err, ErrGivenUp) {
				c.setState(StateGivenUp)
			} else {
				c.setState(StateClosed)
			}
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	return c.dialer.DialContext(dialCtx, "tcp", c.cfg.Addr)
}

// serve joins over conn and relays lines in both directions. It returns nil
// when the user quits, ErrRejected for a terminal server notice, ctx's error
// on cancellation, and errDisconnected when the connection fails.
func (c *Client) serve(ctx context.Context, conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	if err := writeLine(conn, c.cfg.Name); err != nil {
		return fmt.Errorf("%w: sending name: %v", errDisconnected, err)
	}

	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.setState(StateConnected)

	if !c.greeted {
		c.greeted = true
		c.out.Banner(fmt.Sprintf("Welcome to the Chat, %s!", c.cfg.Name))
		c.out.Instructions()
	}

	readDone := make(chan error, 1)
	go func() { readDone <- c.readServer(conn) }()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			<-readDone
			return ctx.Err()

		case err := <-readDone:
			return err

		case line, ok := <-c.input:
			if !ok {
				// Input is exhausted; leave the chat the same way \q does.
				line = protocol.QuitSentinel
			}
			out, send := c.formatOutgoing(line)
			if !send {
				continue
			}
			if err := writeLine(conn, out); err != nil {
				_ = conn.Close()
				<-readDone
				return fmt.Errorf("%w: %v", errDisconnected, err)
			}
			if out == protocol.QuitSentinel {
				_ = conn.Close()
				<-readDone
				return nil
			}
		}
	}
}

// readServer prints every line the server sends until the connection ends.
func (c *Client) readServer(conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		c.out.Server(line)
		if protocol.IsTerminal(line) {
			return fmt.Errorf("%w: %s", ErrRejected, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", errDisconnected, err)
	}
	return fmt.Errorf("%w: %v", errDisconnected, io.EOF)
}

// formatOutgoing prepares a typed line for the wire. Commands are sent
// trimmed; chat text is stamped with the local time. Blank lines are dropped.
func (c *Client) formatOutgoing(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return "", false
	case protocol.IsCommand(trimmed):
		return trimmed, true
	default:
		return "[" + c.now().Format("15:04:05") + "] " + line, true
	}
}

// reconnect asks the user whether to reconnect and, if so, dials the last
// known address up to MaxAttempts times, waiting RetryDelay between attempts.
func (c *Client) reconnect(ctx context.Context) (net.Conn, error) {
	c.out.Warn("You have been disconnected from the server.")
	c.out.Prompt("Would you like to try reconnecting to the server? (yes/no): ")

	answer, err := readLine(ctx, c.input)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !consents(answer) {
		c.out.Info("Exiting the chat. Bye!")
		return nil, fmt.Errorf("%w: reconnection declined", ErrGivenUp)
	}

	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		c.out.Info(fmt.Sprintf("Attempting to reconnect to the server... (Attempt %d of %d)", attempt, c.cfg.MaxAttempts))
		conn, err := c.dial(ctx)
		if err == nil {
			c.out.Info("Reconnected to the server successfully!")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.out.Error(fmt.Sprintf("Reconnection attempt failed: %v", err))

		if attempt >= c.cfg.MaxAttempts {
			c.out.Error("Maximum retries reached. Unable to reconnect.")
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrGivenUp, attempt, err)
		}

		c.out.Warn(fmt.Sprintf("Retrying in %s...", c.cfg.RetryDelay))
		timer := time.NewTimer(c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.out.Error("Reconnection interrupted.")
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func consents(answer string) bool {
	answer = strings.TrimSpace(answer)
	return strings.EqualFold(answer, "yes") || strings.EqualFold(answer, "y")
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
