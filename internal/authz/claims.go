package authz

import (
	"context"
	"fmt"
	"sync"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"gatehouse/internal/auth"
)

// ClaimHandler evaluates ClaimExpression requirements with JMESPath.
// A truthy result (non-empty, non-false, non-null) succeeds; anything else fails.
type ClaimHandler struct {
	log   *zap.SugaredLogger
	mu    sync.RWMutex
	cache map[string]*jmes.JMESPath
}

func NewClaimHandler(log *zap.SugaredLogger) *ClaimHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ClaimHandler{log: log, cache: map[string]*jmes.JMESPath{}}
}

func (h *ClaimHandler) compile(expr string) (*jmes.JMESPath, error) {
	h.mu.RLock()
	c, ok := h.cache[expr]
	h.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := jmes.Compile(expr)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.cache[expr] = c
	h.mu.Unlock()
	return c, nil
}

func (h *ClaimHandler) Validate(req Requirement) error {
	c, ok := req.(ClaimExpression)
	if !ok {
		return nil
	}
	if _, err := h.compile(c.Expression); err != nil {
		return fmt.Errorf("claim expression %q: %w", c.Expression, err)
	}
	return nil
}

func (h *ClaimHandler) Evaluate(_ context.Context, id auth.Identity, req Requirement, res Resource) Outcome {
	c, ok := req.(ClaimExpression)
	if !ok {
		return Abstain
	}
	if id.IsAnonymous() {
		return Fail
	}
	prog, err := h.compile(c.Expression)
	if err != nil {
		h.log.Errorw("claim expression compile", "expr", c.Expression, "err", err)
		return Fail
	}
	doc, err := evalInput(id, res)
	if err != nil {
		return Fail
	}
	v, err := prog.Search(doc)
	if err != nil {
		h.log.Warnw("claim expression eval", "expr", c.Expression, "err", err)
		return Fail
	}
	if truthy(v) {
		return Succeed
	}
	return Fail
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
