package authz

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Policy names referenced by the gateway routes.
const (
	CanAddProject    = "CanAddProject"
	CanManageUsers   = "CanManageUsers"
	CanManageGroups  = "CanManageGroups"
	CanUploadBranch  = "CanUploadBranch"
	CanAccessProject = "CanAccessProject"
)

// DefaultPolicies is the built-in policy table.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: CanAddProject, Requirements: []Requirement{HasRole{Roles: []string{RoleAdministrator, RoleWriter}}}},
		{Name: CanManageUsers, Requirements: []Requirement{HasRole{Roles: []string{RoleAdministrator}}}},
		{Name: CanManageGroups, Requirements: []Requirement{HasRole{Roles: []string{RoleAdministrator}}}},
		{Name: CanUploadBranch, Requirements: []Requirement{ProjectAccess{Action: ActionUpload}}},
		{Name: CanAccessProject, Requirements: []Requirement{ProjectAccess{Action: ActionRead}}},
	}
}

// requirementSpec is one YAML list entry; exactly one field must be set.
//
//	policies:
//	  CanPublish:
//	    - authenticated: true
//	    - has_role: [Administrator, Writer]
//	    - claim: "contains(identity.claims.scope, 'publish')"
//	    - rego: {query: data.gatehouse.allow, module: "package gatehouse ..."}
type requirementSpec struct {
	Authenticated  bool     `yaml:"authenticated"`
	ServiceAccount bool     `yaml:"service_account"`
	HasRole        []string `yaml:"has_role"`
	ProjectAccess  string   `yaml:"project_access"`
	Claim          string   `yaml:"claim"`
	Rego           *struct {
		Query  string `yaml:"query"`
		Module string `yaml:"module"`
	} `yaml:"rego"`
}

type tableFile struct {
	Policies map[string][]requirementSpec `yaml:"policies"`
}

func (s requirementSpec) requirement() (Requirement, error) {
	var out []Requirement
	if s.Authenticated {
		out = append(out, Authenticated{})
	}
	if s.ServiceAccount {
		out = append(out, ServiceAccount{})
	}
	if len(s.HasRole) > 0 {
		out = append(out, HasRole{Roles: s.HasRole})
	}
	if s.ProjectAccess != "" {
		switch s.ProjectAccess {
		case ActionRead, ActionWrite, ActionUpload:
		default:
			return nil, fmt.Errorf("unknown project action %q", s.ProjectAccess)
		}
		out = append(out, ProjectAccess{Action: s.ProjectAccess})
	}
	if s.Claim != "" {
		out = append(out, ClaimExpression{Expression: s.Claim})
	}
	if s.Rego != nil {
		if s.Rego.Query == "" || s.Rego.Module == "" {
			return nil, fmt.Errorf("rego requirement needs query and module")
		}
		out = append(out, RegoRule{Query: s.Rego.Query, Module: s.Rego.Module})
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("requirement entry must set exactly one kind, got %d", len(out))
	}
	return out[0], nil
}

// ParseTable decodes a YAML policy table.
func ParseTable(b []byte) ([]Policy, error) {
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	out := make([]Policy, 0, len(f.Policies))
	for name, specs := range f.Policies {
		p := Policy{Name: name}
		for i, s := range specs {
			req, err := s.requirement()
			if err != nil {
				return nil, fmt.Errorf("policy %q entry %d: %w", name, i, err)
			}
			p.Requirements = append(p.Requirements, req)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadTable reads a policy table file. An empty path yields no policies.
func LoadTable(path string) ([]Policy, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTable(b)
}

// Merge returns base with same-named policies replaced by override and new ones appended.
func Merge(base, override []Policy) []Policy {
	idx := map[string]int{}
	out := append([]Policy(nil), base...)
	for i, p := range out {
		idx[p.Name] = i
	}
	for _, p := range override {
		if i, ok := idx[p.Name]; ok {
			out[i] = p
			continue
		}
		idx[p.Name] = len(out)
		out = append(out, p)
	}
	return out
}

// NewDefaultEngine wires the standard handlers and registers policies.
func NewDefaultEngine(log *zap.SugaredLogger, policies []Policy) (*Engine, error) {
	e := NewEngine(log)
	e.AddHandler(ServiceHandler(), KindServiceAccount, KindHasRole, KindProjectAccess)
	e.AddHandler(AuthenticatedHandler(), KindAuthenticated)
	e.AddHandler(RoleHandler(), KindHasRole)
	e.AddHandler(ProjectHandler(), KindProjectAccess)
	e.AddHandler(NewClaimHandler(e.log), KindClaimExpression)
	e.AddHandler(NewRegoHandler(e.log), KindRegoRule)
	for _, p := range policies {
		if err := e.AddPolicy(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}
