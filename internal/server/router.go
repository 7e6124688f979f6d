package server

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/linechat/internal/protocol"
)

type lineKind int

const (
	lineChat lineKind = iota
	lineEmpty
	linePrivate
	lineUsers
	lineHelp
	lineQuit
)

func classify(line string) lineKind {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return lineEmpty
	case trimmed == protocol.QuitSentinel:
		return lineQuit
	case trimmed == protocol.CommandPrivate, strings.HasPrefix(trimmed, protocol.CommandPrivate+" "):
		return linePrivate
	case strings.EqualFold(trimmed, protocol.CommandUsers):
		return lineUsers
	case strings.EqualFold(trimmed, protocol.CommandHelp):
		return lineHelp
	default:
		return lineChat
	}
}

// parsePrivateMessage splits "/pm <recipient> <message>". The recipient ends at
// the first space and the message is everything after it, spacing included.
func parsePrivateMessage(line string) (recipient, message string, err error) {
	content := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), protocol.CommandPrivate))

	i := strings.IndexByte(content, ' ')
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedCommand, line)
	}
	return content[:i], content[i+1:], nil
}

// Router interprets inbound lines and dispatches them using the Registry.
type Router struct {
	registry  *Registry
	accepting func() bool
	logger    *zap.SugaredLogger
}

// NewRouter creates a Router delivering through registry. Chat broadcasts stop
// once accepting reports false.
func NewRouter(registry *Registry, accepting func() bool, logger *zap.SugaredLogger) *Router {
	return &Router{registry: registry, accepting: accepting, logger: logger}
}

// Dispatch handles one line sent by from and reports whether the sender asked
// to quit. Command errors are answered to the sender only.
func (r *Router) Dispatch(from *Session, line string) (quit bool) {
	switch classify(line) {
	case lineEmpty:
	case lineQuit:
		return true
	case linePrivate:
		if err := r.privateMessage(from, line); err != nil {
			r.logger.Debugw("private message rejected", "from", from.name, "error", err)
		}
	case lineUsers:
		from.Deliver(protocol.ActiveUsers(r.registry.Names()))
	case lineHelp:
		for _, helpLine := range protocol.HelpText {
			from.Deliver(helpLine)
		}
	default:
		r.broadcastChat(from, strings.TrimSpace(line))
	}
	return false
}

// broadcastChat sends text to every Session; the author gets the self-echo form.
func (r *Router) broadcastChat(from *Session, text string) {
	if !r.accepting() {
		return
	}
	for _, s := range r.registry.Snapshot() {
		if s == from {
			s.Deliver(protocol.SelfEcho(text))
		} else {
			s.Deliver(protocol.Chat(from.name, text))
		}
	}
}

func (r *Router) privateMessage(from *Session, line string) error {
	recipient, message, err := parsePrivateMessage(line)
	if err != nil {
		from.Deliver(protocol.MalformedPMNotice)
		return err
	}

	to, ok := r.registry.Lookup(recipient)
	if !ok {
		from.Deliver(protocol.RecipientNotFound(recipient))
		return fmt.Errorf("%w: %s", ErrRecipientNotFound, recipient)
	}

	r.logger.Debugw("private message", "from", from.name, "to", recipient)
	if !to.Deliver(protocol.PrivateFrom(from.name, message)) {
		// The recipient went away between lookup and delivery.
		from.Deliver(protocol.RecipientNotFound(recipient))
		return errors.Join(ErrRecipientNotFound, ErrTransportFailure)
	}
	from.Deliver(protocol.PrivateTo(recipient, message))
	return nil
}
