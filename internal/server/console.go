package server

import (
	"bufio"
	"io"
	"strings"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// RunConsole reads operator commands from r, one per line. The quit sentinel
// shuts the server down and returns; /users logs who is connected. It also
// returns when r is exhausted, leaving the server running.
func (s *Server) RunConsole(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch command := strings.TrimSpace(scanner.Text()); {
		case command == protocol.QuitSentinel:
			if err := s.Shutdown(s.cfg.ShutdownTimeout); err != nil {
				s.logger.Errorf("error while shutting down the server: %v", err)
			}
			return
		case strings.EqualFold(command, protocol.CommandUsers):
			if names := s.registry.Names(); len(names) > 0 {
				s.logger.Infof("currently connected users: %s", strings.Join(names, ", "))
			} else {
				s.logger.Info("no active users")
			}
		case command != "":
			s.logger.Infof("unknown console command %q (use %s to stop the server)", command, protocol.QuitSentinel)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warnf("error reading console input: %v", err)
	}
}
