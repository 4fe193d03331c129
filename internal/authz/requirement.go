package authz

// Requirement is a single condition evaluated against an identity. The concrete
// types below are the closed set of requirement kinds known to the engine.
type Requirement interface {
	Kind() string
}

const (
	KindAuthenticated   = "authenticated"
	KindHasRole         = "has_role"
	KindServiceAccount  = "service_account"
	KindProjectAccess   = "project_access"
	KindClaimExpression = "claim"
	KindRegoRule        = "rego"
)

// Authenticated holds for any non-anonymous identity.
type Authenticated struct{}

// HasRole holds when the identity carries one of Roles (case-insensitive).
type HasRole struct{ Roles []string }

// ServiceAccount holds for service identities (shared secure token, client credentials).
type ServiceAccount struct{}

// ProjectAccess holds when the identity may perform Action on the resource's project.
type ProjectAccess struct{ Action string }

// ClaimExpression holds when the JMESPath Expression is truthy over {identity, resource}.
type ClaimExpression struct{ Expression string }

// RegoRule holds when Query (e.g. data.gatehouse.allow) evaluates to true for Module.
type RegoRule struct {
	Module string
	Query  string
}

func (Authenticated) Kind() string   { return KindAuthenticated }
func (HasRole) Kind() string         { return KindHasRole }
func (ServiceAccount) Kind() string  { return KindServiceAccount }
func (ProjectAccess) Kind() string   { return KindProjectAccess }
func (ClaimExpression) Kind() string { return KindClaimExpression }
func (RegoRule) Kind() string        { return KindRegoRule }

// Project actions understood by ProjectAccess.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionUpload = "upload"
)

// Resource is the request-scoped object a policy may be evaluated against.
type Resource struct {
	ProjectID  string
	BranchName string
	Attributes map[string]string
}
