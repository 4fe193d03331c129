// Package gateway assembles the HTTP pipeline: request id, recovery, tracing,
// query token rewrite, authentication, then per-route policies.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gatehouse/internal/auth"
	"gatehouse/internal/authz"
	"gatehouse/internal/discovery"
	"gatehouse/internal/jobs"
	"gatehouse/internal/upload"
	"gatehouse/pkg/config"
	"gatehouse/pkg/middleware"
	"gatehouse/pkg/problems"
)

// JobQueue is the scheduler surface the routes use.
type JobQueue interface {
	upload.Enqueuer
	Get(ctx context.Context, id string) (jobs.Job, error)
}

// Deps are the collaborators assembled in main.
type Deps struct {
	Config    config.Config
	Log       *zap.SugaredLogger
	Auth      middleware.Authenticator
	Policies  middleware.Authorizer
	Jobs      JobQueue
	Registrar *discovery.Registrar
	Metrics   http.Handler
}

// RoutePolicies lists the policies the router references; main validates them at boot.
var RoutePolicies = []string{
	authz.CanAddProject,
	authz.CanManageUsers,
	authz.CanManageGroups,
	authz.CanUploadBranch,
	authz.CanAccessProject,
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	require := func(policy string, res middleware.ResourceFunc) func(http.Handler) http.Handler {
		return middleware.RequirePolicy(d.Policies, log, policy, res)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.DebugWriteHeader(d.Config.DebugDoubleWrite, log))
	r.Use(middleware.Tracing(d.Config, log))
	r.Use(middleware.TokenFromQuery())
	r.Use(middleware.Authenticate(d.Auth, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/discovery", discoveryStatus(d.Registrar))
		r.With(requireAuthenticated).Get("/jobs/{id}", jobStatus(d.Jobs))

		r.With(require(authz.CanAddProject, nil)).Post("/projects", whoami(authz.CanAddProject))
		r.With(require(authz.CanAccessProject, middleware.ProjectResource)).Get("/projects/{projectId}", whoami(authz.CanAccessProject))
		r.With(require(authz.CanUploadBranch, middleware.ProjectResource)).
			Post("/projects/{projectId}/branches/{branchName}/upload", upload.Handler(log, d.Jobs))

		r.With(require(authz.CanManageUsers, nil)).Get("/users", whoami(authz.CanManageUsers))
		r.With(require(authz.CanManageGroups, nil)).Get("/groups", whoami(authz.CanManageGroups))
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFrom(r.Context()).IsAnonymous() {
			problems.Write(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// whoami answers protected placeholder routes with the caller and the policy it passed.
func whoami(policy string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFrom(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"policy":  policy,
			"subject": id.Subject,
			"kind":    id.Kind,
			"scheme":  id.Scheme,
		})
	}
}

func jobStatus(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := q.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, jobs.ErrNotFound) {
			problems.Write(w, http.StatusNotFound, "job-not-found", "Job not found", "")
			return
		}
		if err != nil {
			problems.Write(w, http.StatusInternalServerError, "job-store", "Job state unavailable", "")
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

func discoveryStatus(reg *discovery.Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if reg == nil {
			writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "status": reg.Status()})
	}
}
