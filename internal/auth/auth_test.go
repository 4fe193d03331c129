package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatehouse/internal/usertokens"
)

const (
	testIssuer   = "https://id.example.com"
	testAudience = "gateway"
	testSecret   = "0f8fad5b-d9cb-469f-a165-70867728950e"
)

type signer struct {
	priv jwk.Key
	pub  jwk.Set
}

func newSigner(t *testing.T) signer {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	return signer{priv: priv, pub: set}
}

func (s signer) token(t *testing.T, exp time.Time, extra map[string]any) string {
	t.Helper()
	return s.tokenFrom(t, testIssuer, exp, extra)
}

func (s signer) tokenFrom(t *testing.T, issuer string, exp time.Time, extra map[string]any) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{testAudience}).
		Subject("alice").
		IssuedAt(time.Now().Add(-2 * time.Hour)).
		Expiration(exp).
		Build()
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, tok.Set(k, v))
	}
	b, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, s.priv))
	require.NoError(t, err)
	return string(b)
}

type stubLookup struct {
	rec   usertokens.Record
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubLookup) Lookup(ctx context.Context, token string) (usertokens.Record, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return usertokens.Record{}, ctx.Err()
		}
	}
	if s.err != nil {
		return usertokens.Record{}, s.err
	}
	if token != "user-tok" {
		return usertokens.Record{}, usertokens.ErrNotFound
	}
	return s.rec, nil
}

func newDispatcher(t *testing.T, keys KeySource, users UserTokenLookup, opts ...Option) *Dispatcher {
	t.Helper()
	schemes := []Scheme{
		NewBearerScheme(testIssuer, testAudience, 0, keys),
		NewSecureTokenScheme(testSecret),
		NewUserTokenScheme(users),
	}
	d, err := NewDispatcher(zap.NewNop().Sugar(), []string{SchemeSecureToken, SchemeBearer, SchemeSecureToken, SchemeUserToken}, schemes, opts...)
	require.NoError(t, err)
	return d
}

func request(header ...string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	for _, h := range header {
		r.Header.Add("Authorization", h)
	}
	return r
}

func TestDispatcherOrder(t *testing.T) {
	d := newDispatcher(t, nil, nil)
	assert.Equal(t, []string{SchemeSecureToken, SchemeBearer, SchemeUserToken}, d.Order())

	_, err := NewDispatcher(nil, []string{"Basic"}, []Scheme{NewSecureTokenScheme("x")})
	assert.Error(t, err)
}

func TestAuthenticateWithoutCredentialIsAnonymous(t *testing.T) {
	d := newDispatcher(t, nil, nil)

	id, err := d.Authenticate(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, id.IsAnonymous())
	assert.Equal(t, KindAnonymous, id.Kind)
}

func TestAuthenticateUnknownSchemeIsRejected(t *testing.T) {
	d := newDispatcher(t, nil, nil)

	_, err := d.Authenticate(context.Background(), request("Basic dXNlcjpwYXNz"))
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestSecureToken(t *testing.T) {
	d := newDispatcher(t, nil, nil)

	id, err := d.Authenticate(context.Background(), request("SecureToken "+testSecret))
	require.NoError(t, err)
	assert.Equal(t, KindService, id.Kind)
	assert.Equal(t, SchemeSecureToken, id.Scheme)

	for _, bad := range []string{"x", testSecret[:len(testSecret)-1], testSecret + "0", "0f8fad5b-d9cb-469f-a165-70867728950f"} {
		_, err := d.Authenticate(context.Background(), request("SecureToken "+bad))
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestSecureTokenWithEmptySecretRejectsEverything(t *testing.T) {
	s := NewSecureTokenScheme("")
	_, err := s.Verify(context.Background(), Credential{Scheme: SchemeSecureToken, Token: ""})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearer(t *testing.T) {
	s := newSigner(t)
	d := newDispatcher(t, StaticKeys{Set: s.pub}, nil)

	t.Run("valid", func(t *testing.T) {
		tok := s.token(t, time.Now().Add(time.Hour), map[string]any{"role": "Writer"})
		id, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		require.NoError(t, err)
		assert.Equal(t, KindUser, id.Kind)
		assert.Equal(t, "alice", id.Subject)
		assert.Equal(t, "Writer", id.Claim("role"))
	})

	t.Run("client credentials is a service", func(t *testing.T) {
		tok := s.token(t, time.Now().Add(time.Hour), map[string]any{"gty": "client_credentials"})
		id, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		require.NoError(t, err)
		assert.Equal(t, KindService, id.Kind)
	})

	t.Run("expired is invalid, not unavailable", func(t *testing.T) {
		tok := s.token(t, time.Now().Add(-time.Hour), nil)
		_, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("foreign key", func(t *testing.T) {
		other := newSigner(t)
		tok := other.token(t, time.Now().Add(time.Hour), nil)
		_, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := d.Authenticate(context.Background(), request("Bearer not-a-jwt"))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("issuer with trailing slash", func(t *testing.T) {
		tok := s.tokenFrom(t, testIssuer+"/", time.Now().Add(time.Hour), nil)
		id, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Subject)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		tok := s.tokenFrom(t, "https://evil.example.com", time.Now().Add(time.Hour), nil)
		_, err := d.Authenticate(context.Background(), request("Bearer "+tok))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerConfiguredWithSlashAcceptsBareIssuer(t *testing.T) {
	s := newSigner(t)
	sch := NewBearerScheme(testIssuer+"/", testAudience, 0, StaticKeys{Set: s.pub})
	_, err := sch.Verify(context.Background(), Credential{Scheme: SchemeBearer, Token: s.token(t, time.Now().Add(time.Hour), nil)})
	assert.NoError(t, err)
}

func TestBearerWithoutKeysIsInvalid(t *testing.T) {
	s := newSigner(t)
	d := newDispatcher(t, nil, nil)

	_, err := d.Authenticate(context.Background(), request("Bearer "+s.token(t, time.Now().Add(time.Hour), nil)))
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, ErrMissingCredential)
}

func TestBearerWithUnreachableJWKS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	s := newSigner(t)
	d := newDispatcher(t, NewRemoteKeys(srv.URL, time.Hour, srv.Client()), nil)

	_, err := d.Authenticate(context.Background(), request("Bearer "+s.token(t, time.Now().Add(time.Hour), nil)))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestRemoteKeysCachesFetch(t *testing.T) {
	s := newSigner(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(s.pub)
	}))
	defer srv.Close()
	d := newDispatcher(t, NewRemoteKeys(srv.URL, time.Hour, srv.Client()), nil)

	for i := 0; i < 3; i++ {
		_, err := d.Authenticate(context.Background(), request("Bearer "+s.token(t, time.Now().Add(time.Hour), nil)))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestUserToken(t *testing.T) {
	users := &stubLookup{rec: usertokens.Record{UserID: "u-7", Role: "Writer", Projects: []string{"docs"}}}
	d := newDispatcher(t, nil, users)

	id, err := d.Authenticate(context.Background(), request("UserToken user-tok"))
	require.NoError(t, err)
	assert.Equal(t, KindUser, id.Kind)
	assert.Equal(t, "u-7", id.Subject)
	assert.Equal(t, []string{"docs"}, id.Strings("projects"))

	_, err = d.Authenticate(context.Background(), request("UserToken unknown"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserTokenExpired(t *testing.T) {
	users := &stubLookup{rec: usertokens.Record{UserID: "u-7", ExpiresAt: time.Now().Add(-time.Minute)}}
	d := newDispatcher(t, nil, users)

	_, err := d.Authenticate(context.Background(), request("UserToken user-tok"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserTokenStoreUnavailableIsRetriedEveryRequest(t *testing.T) {
	users := &stubLookup{err: errors.New("connection refused")}
	d := newDispatcher(t, nil, users)

	for i := 0; i < 2; i++ {
		_, err := d.Authenticate(context.Background(), request("UserToken user-tok"))
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	}
	assert.EqualValues(t, 2, users.calls.Load())
}

func TestUserTokenTimeoutIsUnavailable(t *testing.T) {
	users := &stubLookup{rec: usertokens.Record{UserID: "u-7"}, delay: time.Second}
	d := newDispatcher(t, nil, users, WithTimeout(20*time.Millisecond))

	_, err := d.Authenticate(context.Background(), request("UserToken user-tok"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestPrecedenceWithSeveralCredentials(t *testing.T) {
	s := newSigner(t)
	users := &stubLookup{rec: usertokens.Record{UserID: "u-7"}}
	d := newDispatcher(t, StaticKeys{Set: s.pub}, users)

	// SecureToken outranks UserToken regardless of header order.
	id, err := d.Authenticate(context.Background(), request("UserToken user-tok", "SecureToken "+testSecret))
	require.NoError(t, err)
	assert.Equal(t, SchemeSecureToken, id.Scheme)
	assert.Zero(t, users.calls.Load())

	// A failing higher-precedence scheme is final: no fallback to Bearer.
	_, err = d.Authenticate(context.Background(), request("Bearer "+s.token(t, time.Now().Add(time.Hour), nil), "SecureToken wrong"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d := newDispatcher(t, nil, nil, WithMetrics(m))

	_, _ = d.Authenticate(context.Background(), request("SecureToken "+testSecret))
	_, _ = d.Authenticate(context.Background(), request("SecureToken nope"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(SchemeSecureToken, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(SchemeSecureToken, "invalid")))
}
