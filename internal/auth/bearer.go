package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/sync/singleflight"
)

// KeySource supplies the key set used to verify bearer signatures.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// StaticKeys serves a fixed key set.
type StaticKeys struct{ Set jwk.Set }

func (s StaticKeys) KeySet(context.Context) (jwk.Set, error) {
	if s.Set == nil {
		return nil, fmt.Errorf("no keys configured")
	}
	return s.Set, nil
}

// RemoteKeys fetches and caches a JWKS document. Concurrent refreshes share one fetch.
type RemoteKeys struct {
	url    string
	ttl    time.Duration
	client *http.Client
	group  singleflight.Group

	mu      sync.RWMutex
	set     jwk.Set
	expires time.Time
}

func NewRemoteKeys(url string, ttl time.Duration, client *http.Client) *RemoteKeys {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteKeys{url: url, ttl: ttl, client: client}
}

func (c *RemoteKeys) KeySet(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.set != nil && time.Now().Before(c.expires) {
		defer c.mu.RUnlock()
		return c.set, nil
	}
	stale := c.set
	c.mu.RUnlock()

	v, err, _ := c.group.Do(c.url, func() (any, error) {
		set, err := jwk.Fetch(ctx, c.url, jwk.WithHTTPClient(c.client))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.set, c.expires = set, time.Now().Add(c.ttl)
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}
	return v.(jwk.Set), nil
}

// BearerScheme validates OAuth access tokens (JWT) against issuer, audience and signing keys.
type BearerScheme struct {
	prefix
	issuer   string
	audience string
	skew     time.Duration
	keys     KeySource
}

// NewBearerScheme builds the scheme. With nil keys bearer tokens are not
// accepted and every one is rejected as invalid. The issuer matches the token's
// iss claim with or without a trailing slash.
func NewBearerScheme(issuer, audience string, skew time.Duration, keys KeySource) *BearerScheme {
	return &BearerScheme{
		prefix:   prefix(SchemeBearer),
		issuer:   strings.TrimRight(issuer, "/"),
		audience: audience,
		skew:     skew,
		keys:     keys,
	}
}

func (s *BearerScheme) Verify(ctx context.Context, c Credential) (Identity, error) {
	if s.keys == nil {
		return Identity{}, fmt.Errorf("%w: bearer tokens not accepted, no signing keys configured", ErrInvalidToken)
	}
	set, err := s.keys.KeySet(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: jwks: %v", ErrUpstreamUnavailable, err)
	}
	opts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithVerify(true), jwt.WithAcceptableSkew(s.skew)}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	tok, err := jwt.Parse([]byte(c.Token), opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if s.issuer != "" && strings.TrimRight(tok.Issuer(), "/") != s.issuer {
		return Identity{}, fmt.Errorf("%w: issuer %q not accepted", ErrInvalidToken, tok.Issuer())
	}
	claims, err := tok.AsMap(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kind := KindUser
	if gty, _ := claims["gty"].(string); gty == "client_credentials" {
		kind = KindService
	}
	return Identity{Kind: kind, Subject: tok.Subject(), Scheme: SchemeBearer, Claims: claims}, nil
}
