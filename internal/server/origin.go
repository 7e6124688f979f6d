package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy decides which browser origins may open a WebSocket session.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *zap.SugaredLogger
}

func newOriginPolicy(origins []string, logger *zap.SugaredLogger) originPolicy {
	policy := originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warnf("ignoring invalid origin in configuration: %q", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is used as the upgrader's CheckOrigin. Requests without an Origin
// header are refused unless every origin is allowed.
func (p originPolicy) check(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	if normalized, ok := normalizeOrigin(r.Header.Get("Origin")); ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}

	p.logger.Warnf("blocked websocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
