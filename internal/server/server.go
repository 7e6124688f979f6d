package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/protocol"
)

// Server owns the listening endpoints, the Registry and the lifecycle of every
// connection. One goroutine runs the accept loop and each accepted connection
// gets its own worker for the rest of its life.
type Server struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	registry  *Registry
	admission *Admission
	router    *Router

	// accepting flips from true to false exactly once, when Shutdown begins.
	accepting atomic.Bool
	// mu orders worker registration and pending handshakes against Shutdown.
	mu      sync.Mutex
	workers sync.WaitGroup
	pending map[Transport]struct{}

	listener   net.Listener
	acceptDone chan struct{}

	gateway         *http.Server
	gatewayListener net.Listener
	origins         originPolicy

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// New creates a Server from cfg. Nothing is bound until Start is called.
func New(cfg *config.Config, logger *zap.SugaredLogger) *Server {
	registry := NewRegistry()
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		admission:  NewAdmission(cfg.MaxClients),
		pending:    make(map[Transport]struct{}),
		acceptDone: make(chan struct{}),
		origins:    newOriginPolicy(cfg.WebSocket.AllowedOrigins, logger),
		done:       make(chan struct{}),
	}
	s.router = NewRouter(registry, s.Accepting, logger)
	return s
}

// Start binds the TCP listener (and the WebSocket gateway when configured) and
// begins accepting connections in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.cfg.Address(), err)
	}
	s.listener = ln

	if s.cfg.WebSocket.Addr != "" {
		gln, err := net.Listen("tcp", s.cfg.WebSocket.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("error listening on %s: %w", s.cfg.WebSocket.Addr, err)
		}
		s.gatewayListener = gln
		s.gateway = newGatewayServer(s.routes())
		go func() {
			if err := s.gateway.Serve(gln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Errorf("websocket gateway stopped: %v", err)
			}
		}()
		s.logger.Infof("websocket gateway listening on %s", gln.Addr())
	}

	s.accepting.Store(true)
	go s.acceptLoop()

	s.logger.Infof("server is running on %s (capacity %d)", ln.Addr(), s.cfg.MaxClients)
	return nil
}

// Addr returns the bound TCP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GatewayAddr returns the bound WebSocket gateway address, or nil if disabled.
func (s *Server) GatewayAddr() net.Addr {
	if s.gatewayListener == nil {
		return nil
	}
	return s.gatewayListener.Addr()
}

// Accepting reports whether the server still admits connections.
func (s *Server) Accepting() bool { return s.accepting.Load() }

// Registry exposes the live Session directory.
func (s *Server) Registry() *Registry { return s.registry }

// Done is closed when Shutdown has finished.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.Accepting() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warnf("failed to accept connection: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.logger.Infof("connection established with %s", conn.RemoteAddr())
		s.serveTransport(newTCPTransport(conn, s.cfg.MaxMessageSize, s.cfg.WriteTimeout))
	}
}

// serveTransport hands t to its own worker. Transports arriving after shutdown
// began are closed immediately.
func (s *Server) serveTransport(t Transport) {
	s.mu.Lock()
	if !s.Accepting() {
		s.mu.Unlock()
		_ = t.Close()
		return
	}
	s.workers.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.workers.Done()
		s.handleConnection(t)
	}()
}

func (s *Server) handleConnection(t Transport) {
	if !s.admission.TryAcquire() {
		s.reject(t)
		return
	}

	if !s.trackPending(t) {
		s.admission.Release()
		s.closeRaw(t)
		return
	}
	name, err := s.handshake(t)
	s.untrackPending(t)
	if err != nil {
		s.admission.Release()
		s.logger.Infof("handshake with %s failed: %v", t.RemoteAddr(), err)
		s.closeRaw(t)
		return
	}

	session := newSession(s, name, t)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		session.writePump()
	}()

	if err := s.registry.Add(session); err != nil {
		s.admission.Release()
		s.logger.Infof("rejected %s from %s: %v", name, t.RemoteAddr(), err)
		if errors.Is(err, ErrNameTaken) {
			session.Deliver(protocol.NameTaken(name))
		}
		session.Close(s.cfg.CloseTimeout)
		return
	}

	session.logger.Infof("%s has connected to the server", name)
	session.Deliver(protocol.Welcome(name))
	s.registry.Broadcast(protocol.Joined(name), session)

	session.readLoop()
	session.teardown()
}

// trackPending records t as admitted but not yet named, so Shutdown can cut
// its handshake short. It returns false once shutdown has begun.
func (s *Server) trackPending(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Accepting() {
		return false
	}
	s.pending[t] = struct{}{}
	return true
}

func (s *Server) untrackPending(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, t)
}

// reject turns a connection away over the raw transport; no Session is created.
func (s *Server) reject(t Transport) {
	s.logger.Warnf("connection rejected from %s: %v", t.RemoteAddr(), ErrAdmissionRejected)
	if err := t.WriteLine(protocol.ServerFullNotice); err != nil && !isExpectedCloseError(err) {
		s.logger.Warnf("error sending full-capacity notice to %s: %v", t.RemoteAddr(), err)
	}
	s.closeRaw(t)
}

// handshake reads the proposed display name, which must arrive within the
// handshake timeout, be non-blank, contain no whitespace and fit the length limit.
func (s *Server) handshake(t Transport) (string, error) {
	if err := t.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	line, err := t.ReadLine()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	if err := t.SetReadDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	name := strings.TrimSpace(line)
	if err := s.validateName(name); err != nil {
		_ = t.WriteLine(protocol.InvalidNameNotice)
		return "", err
	}
	return name, nil
}

func (s *Server) validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: blank name", ErrInvalidHandshake)
	case len(name) > s.cfg.MaxNameLength:
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidHandshake, s.cfg.MaxNameLength)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: name contains whitespace", ErrInvalidHandshake)
	}
	return nil
}

func (s *Server) closeRaw(t Transport) {
	if err := t.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warnf("error closing connection from %s: %v", t.RemoteAddr(), err)
	}
}

// Shutdown stops the server: no new connections are admitted, every Session is
// warned and closed, the listeners are released and connection workers are
// given until timeout to finish. Only the first call does anything.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(timeout)
		close(s.done)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(timeout time.Duration) error {
	s.logger.Info("initiating server shutdown")

	s.mu.Lock()
	s.accepting.Store(false)
	pending := make([]Transport, 0, len(s.pending))
	for t := range s.pending {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	// Handshakes in flight fail on the closed transport and release their slots.
	for _, t := range pending {
		s.closeRaw(t)
	}

	sessions := s.registry.Close()
	for _, session := range sessions {
		session.Deliver(protocol.ShutdownNotice)
	}
	s.closeSessions(sessions)

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warnf("error closing listener: %v", err)
		}
		<-s.acceptDone
	}

	if s.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.gateway.Shutdown(ctx)
		cancel()
		if err != nil {
			s.logger.Warnf("websocket gateway shutdown error: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infof("server has been shut down (%d sessions closed)", len(sessions))
		return nil
	case <-time.After(timeout):
		s.logger.Warn("shutdown timeout reached, some connections may still be running")
		return context.DeadlineExceeded
	}
}

// closeSessions closes every Session concurrently; each close is bounded by
// the configured close timeout so one stuck peer cannot hold up the rest.
func (s *Server) closeSessions(sessions []*Session) {
	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(session *Session) {
			defer wg.Done()
			session.Close(s.cfg.CloseTimeout)
		}(session)
	}
	wg.Wait()
}
