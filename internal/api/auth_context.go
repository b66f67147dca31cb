package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/http/response"
)

// Headers set by the identity gateway in front of this server. Sessions and
// login live there; this server trusts the resolved principal.
const (
	HeaderPrincipalID    = "X-Principal-ID"
	HeaderPrincipalAdmin = "X-Principal-Admin"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const principalKey ctxKey = "principal"

// principalFrom returns the principal attached by principalMiddleware.
// Anonymous requests yield the zero principal.
func principalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey).(domain.Principal)
	return p
}

// requirePrincipal returns 401 for anonymous requests.
func requirePrincipal(ctx context.Context) (domain.Principal, error) {
	p := principalFrom(ctx)
	if p.IsZero() {
		return p, domainerrors.Unauthorized("authentication required")
	}
	return p, nil
}

// requireAdmin returns 401 for anonymous and 403 for non-admin requests.
func requireAdmin(ctx context.Context) (domain.Principal, error) {
	p, err := requirePrincipal(ctx)
	if err != nil {
		return p, err
	}
	if !p.IsAdmin {
		return p, domainerrors.Forbidden("admin access required")
	}
	return p, nil
}

// principalMiddleware resolves the gateway headers into a domain.Principal.
// Missing headers leave the request anonymous; malformed ones are rejected.
func (s *Server) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderPrincipalID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(w, "invalid "+HeaderPrincipalID+" header", s.logger)
			return
		}

		admin, _ := strconv.ParseBool(r.Header.Get(HeaderPrincipalAdmin))
		p := domain.Principal{UserID: id, IsAdmin: admin}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}
