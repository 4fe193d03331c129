package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"gatehouse/internal/auth"
)

// RegoHandler evaluates RegoRule requirements with OPA. Queries are prepared once per
// (module, query) pair. The input document is {identity, resource}.
type RegoHandler struct {
	log   *zap.SugaredLogger
	mu    sync.Mutex
	cache map[string]rego.PreparedEvalQuery
}

func NewRegoHandler(log *zap.SugaredLogger) *RegoHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RegoHandler{log: log, cache: map[string]rego.PreparedEvalQuery{}}
}

func (h *RegoHandler) prepare(ctx context.Context, r RegoRule) (rego.PreparedEvalQuery, error) {
	key := r.Query + "\x00" + r.Module
	h.mu.Lock()
	defer h.mu.Unlock()
	if pq, ok := h.cache[key]; ok {
		return pq, nil
	}
	pq, err := rego.New(
		rego.Query(r.Query),
		rego.Module("policy.rego", r.Module),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	h.cache[key] = pq
	return pq, nil
}

func (h *RegoHandler) Validate(req Requirement) error {
	r, ok := req.(RegoRule)
	if !ok {
		return nil
	}
	if _, err := h.prepare(context.Background(), r); err != nil {
		return fmt.Errorf("rego %s: %w", r.Query, err)
	}
	return nil
}

func (h *RegoHandler) Evaluate(ctx context.Context, id auth.Identity, req Requirement, res Resource) Outcome {
	r, ok := req.(RegoRule)
	if !ok {
		return Abstain
	}
	pq, err := h.prepare(ctx, r)
	if err != nil {
		h.log.Errorw("rego prepare", "query", r.Query, "err", err)
		return Fail
	}
	input, err := evalInput(id, res)
	if err != nil {
		return Fail
	}
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		h.log.Warnw("rego eval", "query", r.Query, "err", err)
		return Fail
	}
	if rs.Allowed() {
		return Succeed
	}
	return Fail
}
