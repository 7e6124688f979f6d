package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// newGatewayServer creates the HTTP server fronting the WebSocket gateway with
// timeouts suited to its short-lived, non-upgraded requests.
func newGatewayServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// routes wires the health check and the WebSocket endpoint.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/ws", s.webSocketHandler)
	return mux
}

// healthHandler reports that the server is up and how many users are connected.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running! Active users: %d", s.registry.Len())
}

// webSocketHandler upgrades the request and feeds the connection through the
// same admission, handshake and Session path as a TCP client. Each text frame
// carries one protocol line.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !s.Accepting() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	s.logger.Infof("websocket connection established with %s", r.RemoteAddr)
	s.serveTransport(newWSTransport(conn, r.RemoteAddr, s.cfg.MaxMessageSize, s.cfg.WriteTimeout))
}
