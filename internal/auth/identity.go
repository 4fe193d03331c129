package auth

import "context"

// Kind classifies the resolved principal.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindService   Kind = "service"
	KindUser      Kind = "user"
)

// Identity is the principal produced by the dispatcher. Claims must be treated as read-only.
type Identity struct {
	Kind    Kind
	Subject string
	Scheme  string
	Claims  map[string]any
}

// Anonymous is returned for requests that carry no credential.
func Anonymous() Identity { return Identity{Kind: KindAnonymous} }

func (i Identity) IsAnonymous() bool { return i.Kind == KindAnonymous || i.Kind == "" }

// Claim returns a claim value or nil.
func (i Identity) Claim(name string) any {
	if i.Claims == nil {
		return nil
	}
	return i.Claims[name]
}

// Strings returns a claim as a string slice. Space separated strings (OAuth "scope") are split.
func (i Identity) Strings(name string) []string {
	switch v := i.Claim(name).(type) {
	case nil:
		return nil
	case string:
		return splitFields(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type ctxIdentityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// IdentityFrom returns the identity stored by the authentication middleware, or Anonymous.
func IdentityFrom(ctx context.Context) Identity {
	if v := ctx.Value(ctxIdentityKey{}); v != nil {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Anonymous()
}
