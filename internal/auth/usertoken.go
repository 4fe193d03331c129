package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatehouse/internal/usertokens"
)

// UserTokenLookup resolves per-user tokens (user directory).
type UserTokenLookup interface {
	Lookup(ctx context.Context, token string) (usertokens.Record, error)
}

// UserTokenScheme verifies "UserToken <value>" credentials against a user directory.
type UserTokenScheme struct {
	prefix
	store UserTokenLookup
	now   func() time.Time
}

func NewUserTokenScheme(store UserTokenLookup) *UserTokenScheme {
	return &UserTokenScheme{prefix: prefix(SchemeUserToken), store: store, now: time.Now}
}

func (s *UserTokenScheme) Verify(ctx context.Context, c Credential) (Identity, error) {
	if s.store == nil {
		return Identity{}, fmt.Errorf("%w: no user token store configured", ErrUpstreamUnavailable)
	}
	rec, err := s.store.Lookup(ctx, c.Token)
	switch {
	case errors.Is(err, usertokens.ErrNotFound):
		return Identity{}, ErrInvalidToken
	case err != nil:
		return Identity{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if rec.Expired(s.now()) {
		return Identity{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	claims := map[string]any{
		"sub":      rec.UserID,
		"name":     rec.Name,
		"role":     rec.Role,
		"projects": append([]string(nil), rec.Projects...),
	}
	return Identity{Kind: KindUser, Subject: rec.UserID, Scheme: SchemeUserToken, Claims: claims}, nil
}
