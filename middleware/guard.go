package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	gatekit "github.com/MrEthical07/gatekit"
)

const (
	grantHeader = "X-2FA-Grant"
	codeHeader  = "X-2FA-Code"
)

type decisionContextKey struct{}
type identityContextKey struct{}

// DecisionFromContext describes the decisionfromcontext operation and its observable behavior.
//
// DecisionFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DecisionFromContext(ctx context.Context) (*gatekit.Decision, bool) {
	decision, ok := ctx.Value(decisionContextKey{}).(*gatekit.Decision)
	return decision, ok
}

// IdentityFromContext describes the identityfromcontext operation and its observable behavior.
//
// IdentityFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func IdentityFromContext(ctx context.Context) (*gatekit.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*gatekit.Identity)
	return identity, ok
}

// Protect wraps a handler with the full gate pipeline for one route
// policy. The request body is buffered up to maxBody+1 bytes so the gate
// can scan it and the handler can still read it; pass 0 to use 1 MiB.
func Protect(gate *gatekit.Gate, policy gatekit.RoutePolicy, maxBody int64) func(http.Handler) http.Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				writeDeny(w, gatekit.Decision{
					Status: http.StatusServiceUnavailable,
					Body:   gatekit.DenyBody{Error: "service_unavailable"},
				})
				return
			}

			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				// One extra byte so the scanner sees oversized bodies as such.
				data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
				if err != nil {
					writeDeny(w, gatekit.Decision{
						Status: http.StatusBadRequest,
						Body:   gatekit.DenyBody{Error: "invalid_input"},
					})
					return
				}
				body = data
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			req := &gatekit.Request{
				Method:         r.Method,
				Path:           r.URL.Path,
				IP:             clientIP(r),
				UserAgent:      r.UserAgent(),
				Headers:        r.Header,
				Query:          r.URL.Query(),
				Body:           body,
				SessionToken:   sessionToken(r),
				TwoFactorGrant: r.Header.Get(grantHeader),
				TwoFactorCode:  r.Header.Get(codeHeader),
			}

			decision := gate.Authorize(r.Context(), req, policy)
			if !decision.Allow {
				writeDeny(w, decision)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, &decision)
			if decision.Identity != nil {
				ctx = context.WithValue(ctx, identityContextKey{}, decision.Identity)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDeny(w http.ResponseWriter, decision gatekit.Decision) {
	w.Header().Set("Content-Type", "application/json")
	if decision.Body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(decision.Body.RetryAfter))
	}
	w.WriteHeader(decision.Status)
	_ = json.NewEncoder(w).Encode(decision.Body)
}

// sessionToken reads the bearer token carrying the session reference.
func sessionToken(r *http.Request) string {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, bearer) {
		return ""
	}
	return value[len(bearer):]
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
