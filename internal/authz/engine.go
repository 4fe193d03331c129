package authz

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"gatehouse/internal/auth"
)

// Outcome is a handler's verdict for one requirement.
type Outcome int

const (
	Abstain Outcome = iota
	Succeed
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Succeed:
		return "succeed"
	case Fail:
		return "fail"
	default:
		return "abstain"
	}
}

// Handler evaluates requirements of the kinds it is registered for.
// Implementations must not mutate the identity or resource.
type Handler interface {
	Evaluate(ctx context.Context, id auth.Identity, req Requirement, res Resource) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, id auth.Identity, req Requirement, res Resource) Outcome

func (f HandlerFunc) Evaluate(ctx context.Context, id auth.Identity, req Requirement, res Resource) Outcome {
	return f(ctx, id, req, res)
}

// validator is implemented by handlers that can check a requirement at startup.
type validator interface {
	Validate(req Requirement) error
}

// Policy is a named set of requirements; all must hold.
type Policy struct {
	Name         string
	Requirements []Requirement
}

// Engine evaluates named policies. Policies and handlers are registered during
// startup and read-only afterwards.
type Engine struct {
	log      *zap.SugaredLogger
	policies map[string]Policy
	handlers map[string][]Handler
}

func NewEngine(log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{log: log, policies: map[string]Policy{}, handlers: map[string][]Handler{}}
}

// AddPolicy registers p. Names are unique and a policy needs at least one requirement.
func (e *Engine) AddPolicy(p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("authz: policy without name")
	}
	if _, dup := e.policies[p.Name]; dup {
		return fmt.Errorf("authz: policy %q already registered", p.Name)
	}
	if len(p.Requirements) == 0 {
		return fmt.Errorf("authz: policy %q has no requirements", p.Name)
	}
	p.Requirements = append([]Requirement(nil), p.Requirements...)
	e.policies[p.Name] = p
	return nil
}

// AddHandler registers h for the given requirement kinds. Handlers run in registration order.
func (e *Engine) AddHandler(h Handler, kinds ...string) {
	for _, k := range kinds {
		e.handlers[k] = append(e.handlers[k], h)
	}
}

// Policies lists registered policy names, sorted.
func (e *Engine) Policies() []string {
	out := make([]string, 0, len(e.policies))
	for n := range e.policies {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate fails fast on unknown policy names, requirements nobody handles and
// requirements a handler rejects (bad JMESPath, rego compile errors).
// With no names every registered policy is checked.
func (e *Engine) Validate(names ...string) error {
	if len(names) == 0 {
		names = e.Policies()
	}
	for _, n := range names {
		p, ok := e.policies[n]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPolicy, n)
		}
		for _, req := range p.Requirements {
			hs := e.handlers[req.Kind()]
			if len(hs) == 0 {
				return fmt.Errorf("authz: policy %q: no handler for requirement %q", n, req.Kind())
			}
			for _, h := range hs {
				if v, ok := h.(validator); ok {
					if err := v.Validate(req); err != nil {
						return fmt.Errorf("authz: policy %q: %w", n, err)
					}
				}
			}
		}
	}
	return nil
}

// Authorize succeeds iff every requirement of the policy has at least one
// handler returning Succeed. Abstain defers to the next handler.
func (e *Engine) Authorize(ctx context.Context, id auth.Identity, policy string, res Resource) error {
	p, ok := e.policies[policy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	for _, req := range p.Requirements {
		if !e.satisfied(ctx, id, req, res) {
			e.log.Debugw("requirement not satisfied", "policy", policy, "requirement", req.Kind(), "subject", id.Subject, "kind", id.Kind)
			return fmt.Errorf("%w: %s requires %s", ErrDenied, policy, req.Kind())
		}
	}
	return nil
}

func (e *Engine) satisfied(ctx context.Context, id auth.Identity, req Requirement, res Resource) bool {
	for _, h := range e.handlers[req.Kind()] {
		if h.Evaluate(ctx, id, req, res) == Succeed {
			return true
		}
	}
	return false
}
