package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"agentboard/pkg/config"
	"agentboard/pkg/logger"
	"agentboard/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxAgentKey struct{}

// RequireSignedAgent verifies HMAC signature headers and injects the
// verified agent id into the request context.
func RequireSignedAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Determine caller role set earlier by gateway middleware
		role := r.Header.Get("X-Role-Name")
		agentID := strings.TrimSpace(r.Header.Get("X-Agent-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-Agent-Signature"))

		// Backend/admin callers: allow missing signature entirely, or accept
		// a header-provided agent without a signature. If a signature is
		// present we will verify it below.
		if role == "backend" || role == "admin" {
			if sig == "" {
				// No signature provided; allow the request through. Handlers may
				// accept an agent from body or X-Agent-ID header as appropriate.
				next.ServeHTTP(w, r)
				return
			}
			// signature present -> fallthrough to verification logic
		}

		// If we reach here and there's no signature, the caller is not a
		// trusted backend/admin and we must require signature headers.
		if sig == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}
		// signature is present; require agentID as well
		if agentID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		// Retrieve signing keys from the canonical config package.
		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		// Try all configured signing keys.
		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(agentID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "agent", agentID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logger.Info("signature_verified", "agent", agentID)
		ctx := context.WithValue(r.Context(), ctxAgentKey{}, agentID)
		r = r.WithContext(ctx)
		// do not set headers; handlers should use context via AgentIDFromContext
		next.ServeHTTP(w, r)
	})
}

// AgentIDFromContext returns the verified agent id or empty string.
func AgentIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxAgentKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func validateAgent(a string) (bool, string) {
	if a == "" {
		return false, "agent required"
	}
	if len(a) > 128 {
		return false, "agent too long"
	}
	return true, ""
}

// ResolveAgentFromRequest is the single canonical resolver handlers should call.
// It prefers a signature-verified agent (in context). If a signature is present
// it is authoritative; any conflicting agent provided via header/body/query
// will cause a 403. When no signature is present, backend/admin roles may
// supply an agent via body, header (X-Agent-ID) or query (fallback). Frontend
// callers require a signature and will receive 401 when missing.
func ResolveAgentFromRequest(r *http.Request, bodyAgent string) (string, int, string) {
	// Prefer signature-verified agent from context
	if id := AgentIDFromContext(r.Context()); id != "" {
		// If other provided agents conflict with the signature, reject.
		if q := strings.TrimSpace(r.URL.Query().Get("agent")); q != "" && !strings.EqualFold(q, id) {
			logger.Warn("agent_mismatch_signature_query", "signature", id, "query", q, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "agent mismatch between signature and query param"
		}
		if h := strings.TrimSpace(r.Header.Get("X-Agent-ID")); h != "" && h != id {
			logger.Warn("agent_mismatch_signature_header", "signature", id, "header", h, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "agent mismatch between signature and header"
		}
		if bodyAgent != "" && !strings.EqualFold(bodyAgent, id) {
			logger.Warn("agent_mismatch_signature_body", "signature", id, "body", bodyAgent, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "agent mismatch between signature and body agent"
		}
		logger.Debug("agent_resolved_signature", "agent", id, "path", r.URL.Path)
		return id, 0, ""
	}

	// No signature; allow backend/admins to supply an agent via body/header/query.
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if bodyAgent != "" {
			if ok, msg := validateAgent(bodyAgent); !ok {
				logger.Warn("invalid_backend_agent", "agent", bodyAgent, "remote", r.RemoteAddr, "path", r.URL.Path)
				return "", http.StatusBadRequest, msg
			}
			return bodyAgent, 0, ""
		}
		if h := strings.TrimSpace(r.Header.Get("X-Agent-ID")); h != "" {
			if ok, msg := validateAgent(h); !ok {
				logger.Warn("invalid_backend_agent", "agent", h, "remote", r.RemoteAddr, "path", r.URL.Path)
				return "", http.StatusBadRequest, msg
			}
			return h, 0, ""
		}
		if q := strings.TrimSpace(r.URL.Query().Get("agent")); q != "" {
			if ok, msg := validateAgent(q); !ok {
				logger.Warn("invalid_backend_agent", "agent", q, "remote", r.RemoteAddr, "path", r.URL.Path)
				return "", http.StatusBadRequest, msg
			}
			return q, 0, ""
		}
		logger.Warn("backend_missing_agent", "remote", r.RemoteAddr, "path", r.URL.Path)
		return "", http.StatusBadRequest, "agent required for backend requests"
	}

	// Otherwise require signature
	logger.Warn("missing_agent_signature", "role", role, "remote", r.RemoteAddr, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid agent signature"
}
