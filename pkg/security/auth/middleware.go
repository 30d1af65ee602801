package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyMiddleware is HTTP middleware for API key authentication
type APIKeyMiddleware struct {
	validator APIKeyStore
	header    string
	scheme    string
	logger    *slog.Logger
}

// NewAPIKeyMiddleware creates middleware that reads the key from header,
// stripping scheme ("Bearer") when set.
func NewAPIKeyMiddleware(validator APIKeyStore, header, scheme string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		validator: validator,
		header:    header,
		scheme:    scheme,
		logger:    slog.Default().With("component", "security.auth"),
	}
}

// Handle wraps next with API key authentication. Requests routed with a
// {name} path value are also checked against the key's limiters.
func (m *APIKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := m.extractAPIKey(r)
		if !ok {
			m.logger.Warn("missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			m.deny(w, http.StatusUnauthorized, "unauthorized", "missing API key")
			return
		}

		keyInfo, err := m.validator.Validate(apiKey)
		if err != nil {
			m.logger.Warn("API key rejected",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			msg := "invalid API key"
			if errors.Is(err, ErrKeyDisabled) {
				msg = "API key disabled"
			}
			m.deny(w, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		if limiter := r.PathValue("name"); limiter != "" && !keyInfo.Allows(limiter) {
			m.logger.Warn("API key not allowed for limiter",
				"key", keyInfo.Name,
				"limiter", limiter,
			)
			m.deny(w, http.StatusForbidden, "forbidden", "API key may not use limiter "+limiter)
			return
		}

		m.logger.Debug("API key authenticated", "key", keyInfo.Name, "path", r.URL.Path)

		ctx := context.WithValue(r.Context(), apiKeyInfoKey, keyInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAPIKey reads the key from the configured header.
func (m *APIKeyMiddleware) extractAPIKey(r *http.Request) (string, bool) {
	value := strings.TrimSpace(r.Header.Get(m.header))
	if value == "" {
		return "", false
	}
	if m.scheme == "" {
		return value, true
	}
	prefix := m.scheme + " "
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(value[len(prefix):]), true
}

func (m *APIKeyMiddleware) deny(w http.ResponseWriter, code int, errType, message string) {
	if code == http.StatusUnauthorized && m.scheme != "" {
		w.Header().Set("WWW-Authenticate", m.scheme)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": errType},
	})
}

// Context key for API key info
type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const apiKeyInfoKey contextKey = "api_key_info"

// GetAPIKeyInfo retrieves API key info from request context
func GetAPIKeyInfo(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyInfoKey).(*APIKeyInfo)
	return info, ok
}
