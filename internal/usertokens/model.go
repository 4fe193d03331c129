package usertokens

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a token is unknown to the directory.
var ErrNotFound = errors.New("user token not found")

// Record is the user a personal access token belongs to.
type Record struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`     // Administrator | Writer | Reader
	Projects  []string  `json:"projects"` // project ids the user may write to
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has an expiry in the past.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type Store interface {
	Lookup(ctx context.Context, token string) (Record, error)
}
