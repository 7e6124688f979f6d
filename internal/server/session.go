package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Session is one connected client: its display name, the transport it owns and
// the queue of lines waiting to be written to it. The read loop runs on the
// connection's goroutine; writes are serialized through writePump so a
// broadcast and a private reply can arrive at the same time safely.
type Session struct {
	id        string
	name      string
	transport Transport
	srv       *Server
	logger    *zap.SugaredLogger

	send       chan string
	mu         sync.Mutex
	closed     bool
	writerDone chan struct{}

	rateLimiter *rateLimiter
}

func newSession(srv *Server, name string, transport Transport) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		name:        name,
		transport:   transport,
		srv:         srv,
		logger:      srv.logger.With("session", id, "name", name, "addr", transport.RemoteAddr()),
		send:        make(chan string, srv.cfg.SendBuffer),
		writerDone:  make(chan struct{}),
		rateLimiter: newRateLimiter(srv.cfg.RateLimit.Burst, srv.cfg.RateLimit.RefillInterval),
	}
}

// Name returns the Session's display name.
func (s *Session) Name() string { return s.name }

// ID returns the identifier used to correlate this Session's log lines.
func (s *Session) ID() string { return s.id }

// Deliver queues line for this Session without blocking. It returns false if
// the Session is closed or its queue is full; a full queue means the client is
// not keeping up, and it is evicted rather than allowed to stall the sender.
func (s *Session) Deliver(line string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	select {
	case s.send <- line:
		s.mu.Unlock()
		return true
	default:
	}
	s.mu.Unlock()

	s.logger.Warnf("send buffer full (%d lines); evicting slow client", cap(s.send))
	go s.evict()
	return false
}

func (s *Session) evict() {
	s.teardown()
	if err := s.transport.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warnf("error closing connection: %v", err)
	}
}

// writePump drains the send queue onto the transport and closes the transport
// once the queue has been closed and emptied.
func (s *Session) writePump() {
	defer close(s.writerDone)

	for line := range s.send {
		if err := s.transport.WriteLine(line); err != nil {
			if !isExpectedCloseError(err) {
				s.logger.Warnf("%v", fmt.Errorf("%w: writing: %v", ErrTransportFailure, err))
			}
			// The read side will notice the closed transport and tear down.
			s.closeTransport()
			for range s.send {
			}
			return
		}
	}
	s.closeTransport()
}

func (s *Session) closeTransport() {
	if err := s.transport.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warnf("error closing connection: %v", err)
	}
}

// readLoop processes inbound lines until the client quits or the transport fails.
func (s *Session) readLoop() {
	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			if isExpectedCloseError(err) {
				s.logger.Debugf("connection closed: %v", err)
			} else if s.srv.Accepting() {
				s.logger.Warnf("unexpected disconnection: %v", fmt.Errorf("%w: %v", ErrTransportFailure, err))
			}
			return
		}

		// Quitting is never throttled.
		if classify(line) != lineQuit && !s.rateLimiter.allow() {
			s.logger.Infof("rate limit exceeded (%d lines per %s); discarding line",
				s.srv.cfg.RateLimit.Burst, s.srv.cfg.RateLimit.RefillInterval)
			s.Deliver(protocol.RateLimitedNotice)
			continue
		}

		if quit := s.srv.router.Dispatch(s, line); quit {
			s.logger.Debug("client quit")
			return
		}
	}
}

// closeQueue stops further deliveries and lets writePump finish. Safe to call
// any number of times.
func (s *Session) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// teardown ends the Session. Normal quit, read failure, eviction and shutdown
// all funnel through here; only the call that removes the Session from the
// Registry releases its admission slot and announces the departure.
func (s *Session) teardown() {
	s.closeQueue()

	if !s.srv.registry.Remove(s) {
		return
	}
	s.srv.admission.Release()

	s.logger.Infof("disconnected; active users: %v", s.srv.registry.Names())

	if s.srv.Accepting() {
		s.srv.registry.Broadcast(protocol.Left(s.name), s)
	}
}

// Close flushes queued lines and closes the transport, forcing it shut if the
// writer has not finished within timeout.
func (s *Session) Close(timeout time.Duration) {
	s.closeQueue()

	select {
	case <-s.writerDone:
	case <-time.After(timeout):
		s.logger.Warnf("writer did not finish within %s; forcing connection closed", timeout)
		s.closeTransport()
	}
}
