package authz

import (
	"context"
	"slices"
	"strings"

	"gatehouse/internal/auth"
)

// Role names issued by the user directory.
const (
	RoleAdministrator = "Administrator"
	RoleWriter        = "Writer"
	RoleReader        = "Reader"
)

// AuthenticatedHandler succeeds for any concrete subject.
func AuthenticatedHandler() Handler {
	return HandlerFunc(func(_ context.Context, id auth.Identity, req Requirement, _ Resource) Outcome {
		if _, ok := req.(Authenticated); !ok {
			return Abstain
		}
		if id.IsAnonymous() {
			return Fail
		}
		return Succeed
	})
}

// ServiceHandler lets service identities through whatever requirement it is registered for.
func ServiceHandler() Handler {
	return HandlerFunc(func(_ context.Context, id auth.Identity, _ Requirement, _ Resource) Outcome {
		if id.Kind == auth.KindService {
			return Succeed
		}
		return Abstain
	})
}

// RoleHandler checks HasRole against the "role" and "roles" claims.
func RoleHandler() Handler {
	return HandlerFunc(func(_ context.Context, id auth.Identity, req Requirement, _ Resource) Outcome {
		r, ok := req.(HasRole)
		if !ok || id.IsAnonymous() {
			return Abstain
		}
		for _, have := range roles(id) {
			for _, want := range r.Roles {
				if strings.EqualFold(have, want) {
					return Succeed
				}
			}
		}
		return Abstain
	})
}

// ProjectHandler checks ProjectAccess. Administrators may act on every project;
// writers may write/upload to projects listed in their "projects" claim; any
// member may read.
func ProjectHandler() Handler {
	return HandlerFunc(func(_ context.Context, id auth.Identity, req Requirement, res Resource) Outcome {
		p, ok := req.(ProjectAccess)
		if !ok || id.IsAnonymous() {
			return Abstain
		}
		if hasRole(id, RoleAdministrator) {
			return Succeed
		}
		if res.ProjectID == "" || !slices.Contains(id.Strings("projects"), res.ProjectID) {
			return Abstain
		}
		switch p.Action {
		case ActionRead:
			return Succeed
		case ActionWrite, ActionUpload:
			if hasRole(id, RoleWriter) {
				return Succeed
			}
		}
		return Abstain
	})
}

func roles(id auth.Identity) []string {
	return append(id.Strings("role"), id.Strings("roles")...)
}

func hasRole(id auth.Identity, role string) bool {
	for _, r := range roles(id) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
