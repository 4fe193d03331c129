package auth

import (
	"context"
	"strings"
)

// Scheme turns a credential into an identity.
// Matches only inspects the scheme prefix; Verify does the real work.
type Scheme interface {
	Name() string
	Matches(c Credential) bool
	Verify(ctx context.Context, c Credential) (Identity, error)
}

// prefix implements Name/Matches for schemes keyed by their header prefix.
type prefix string

func (p prefix) Name() string { return string(p) }

func (p prefix) Matches(c Credential) bool {
	return strings.EqualFold(c.Scheme, string(p)) && c.Token != ""
}
