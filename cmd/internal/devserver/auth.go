package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/naval-1647/CodeMonitor/cmd/security/token"
)

// ErrUnauthenticated is returned for a missing or unknown token.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is an authenticated caller.
type User struct {
	ID       string
	Username string
}

// Authenticator maps bearer tokens to users.
//
// Tokens come from a static table (token -> username). With AllowAny, unknown tokens are
// accepted too and get a name derived from their fingerprint. User ids are always token
// fingerprints, so the raw token never leaves this type.
type Authenticator struct {
	tokens   map[string]string
	allowAny bool
}

// NewAuthenticator builds an Authenticator from a token table.
func NewAuthenticator(tokens map[string]string, allowAny bool) *Authenticator {
	t := make(map[string]string, len(tokens))
	for tok, name := range tokens {
		tok, name = strings.TrimSpace(tok), strings.TrimSpace(name)
		if tok == "" {
			continue
		}
		t[tok] = name
	}
	return &Authenticator{tokens: t, allowAny: allowAny}
}

// ParseTokens parses "token=username,token2=username2". Entries without "=" use the token as
// the username.
func ParseTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tok, name, ok := strings.Cut(part, "=")
		tok = strings.TrimSpace(tok)
		if !ok {
			name = tok
		}
		if tok != "" {
			out[tok] = strings.TrimSpace(name)
		}
	}
	return out
}

// Authenticate resolves tok to a User.
func (a *Authenticator) Authenticate(tok string) (User, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return User{}, ErrUnauthenticated
	}

	fp := token.Fingerprint(tok)
	name, ok := a.tokens[tok]
	switch {
	case ok && name != "":
	case ok, a.allowAny:
		name = "dev-" + fp[:6]
	default:
		return User{}, ErrUnauthenticated
	}
	return User{ID: "u_" + fp, Username: name}, nil
}

// FromQuery authenticates the token query parameter (websocket endpoints).
func (a *Authenticator) FromQuery(r *http.Request) (User, error) {
	return a.Authenticate(r.URL.Query().Get("token"))
}

// FromBearer authenticates an "Authorization: Bearer <token>" header (REST endpoints).
func (a *Authenticator) FromBearer(r *http.Request) (User, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return User{}, ErrUnauthenticated
	}
	return a.Authenticate(tok)
}
