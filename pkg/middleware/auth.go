// pkg/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gatehouse/internal/auth"
	"gatehouse/internal/authz"
	"gatehouse/pkg/problems"
)

// Authenticator resolves the identity behind a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (auth.Identity, error)
}

// Authorizer evaluates a named policy.
type Authorizer interface {
	Authorize(ctx context.Context, id auth.Identity, policy string, res authz.Resource) error
}

// publicPath reports endpoints served without authentication.
func publicPath(p string) bool {
	return p == "/healthz" || p == "/metrics" || strings.HasPrefix(p, "/.well-known/")
}

// TokenFromQuery copies the access_token query parameter into the Authorization
// header when the header is absent. It must run before Authenticate.
func TokenFromQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth.RewriteQueryToken(r)
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate runs the dispatcher and stores the identity in the request context.
// Requests without credentials continue as anonymous; policies decide what they may reach.
func Authenticate(a Authenticator, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			id, err := a.Authenticate(r.Context(), r)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
			case errors.Is(err, auth.ErrUpstreamUnavailable):
				log.Warnw("authentication upstream unavailable", "path", r.URL.Path, "err", err)
				problems.Write(w, http.StatusServiceUnavailable, "auth-unavailable", "Authentication unavailable", "credential could not be verified, retry later")
			case errors.Is(err, auth.ErrMissingCredential):
				problems.Write(w, http.StatusUnauthorized, "missing-credential", "Unauthorized", "no supported authorization scheme")
			default:
				log.Debugw("authentication rejected", "path", r.URL.Path, "err", err)
				problems.Write(w, http.StatusUnauthorized, "invalid-token", "Unauthorized", "invalid credential")
			}
		})
	}
}

// ResourceFunc extracts the policy resource from a request.
type ResourceFunc func(r *http.Request) authz.Resource

// ProjectResource reads the projectId and branchName route parameters.
func ProjectResource(r *http.Request) authz.Resource {
	return authz.Resource{
		ProjectID:  chi.URLParam(r, "projectId"),
		BranchName: chi.URLParam(r, "branchName"),
	}
}

// RequirePolicy rejects requests whose identity does not satisfy policy.
// A denied anonymous caller gets 401, a denied authenticated caller 403.
func RequirePolicy(a Authorizer, log *zap.SugaredLogger, policy string, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFrom(r.Context())
			var res authz.Resource
			if resource != nil {
				res = resource(r)
			}
			err := a.Authorize(r.Context(), id, policy, res)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, authz.ErrDenied) && id.IsAnonymous():
				problems.Write(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "authentication required")
			case errors.Is(err, authz.ErrDenied):
				log.Debugw("policy denied", "policy", policy, "subject", id.Subject, "err", err)
				problems.Write(w, http.StatusForbidden, "forbidden", "Forbidden", "policy "+policy+" not satisfied")
			default:
				log.Errorw("policy evaluation", "policy", policy, "err", err)
				problems.Write(w, http.StatusInternalServerError, "policy-error", "Authorization failed", "")
			}
		})
	}
}
