package authz

import (
	"encoding/json"

	"gatehouse/internal/auth"
)

// evalInput is the document expression and rego handlers evaluate against.
// It is normalized through JSON so both engines see plain maps and slices.
func evalInput(id auth.Identity, res Resource) (map[string]any, error) {
	doc := map[string]any{
		"identity": map[string]any{
			"kind":    string(id.Kind),
			"subject": id.Subject,
			"scheme":  id.Scheme,
			"claims":  id.Claims,
		},
		"resource": map[string]any{
			"project_id":  res.ProjectID,
			"branch_name": res.BranchName,
			"attributes":  res.Attributes,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
