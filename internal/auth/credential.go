package auth

import (
	"net/http"
	"strings"
)

// Scheme names as they appear in the Authorization header.
const (
	SchemeBearer      = "Bearer"
	SchemeSecureToken = "SecureToken"
	SchemeUserToken   = "UserToken"
)

// QueryTokenParam is the reserved query parameter rewritten into the Authorization header.
const QueryTokenParam = "access_token"

// Credential is one "<scheme> <token>" pair taken from the Authorization header.
type Credential struct {
	Scheme string
	Token  string
}

// ParseCredentials returns every well-formed Authorization value in header order.
// A comma separates two credentials only when a known scheme follows it, so
// tokens may themselves contain commas.
func ParseCredentials(h http.Header) []Credential {
	var out []Credential
	for _, raw := range h.Values("Authorization") {
		for _, part := range splitCredentials(raw) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			scheme, token, _ := strings.Cut(part, " ")
			out = append(out, Credential{Scheme: scheme, Token: strings.TrimSpace(token)})
		}
	}
	return out
}

func splitCredentials(raw string) []string {
	var out []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == ',' && hasKnownPrefix(strings.TrimSpace(raw[i+1:])) {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	return append(out, raw[start:])
}

// RewriteQueryToken copies the access_token query parameter into the Authorization header
// when no header credential is present. Values without a known scheme prefix are taken as
// bearer tokens. It reports whether the header was rewritten.
func RewriteQueryToken(r *http.Request) bool {
	if strings.TrimSpace(r.Header.Get("Authorization")) != "" {
		return false
	}
	v := strings.TrimSpace(r.URL.Query().Get(QueryTokenParam))
	if v == "" {
		return false
	}
	if !hasKnownPrefix(v) {
		v = SchemeBearer + " " + v
	}
	r.Header.Set("Authorization", v)
	return true
}

func hasKnownPrefix(v string) bool {
	scheme, rest, ok := strings.Cut(v, " ")
	if !ok || strings.TrimSpace(rest) == "" {
		return false
	}
	for _, s := range []string{SchemeBearer, SchemeSecureToken, SchemeUserToken} {
		if strings.EqualFold(scheme, s) {
			return true
		}
	}
	return false
}

func splitFields(s string) []string { return strings.Fields(s) }
