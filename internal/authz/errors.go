package authz

import "errors"

var (
	ErrDenied        = errors.New("access denied")
	ErrUnknownPolicy = errors.New("unknown policy")
)
