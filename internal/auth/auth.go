// Package auth implements a ResolveUser(request) -> UserID contract as
// an external collaborator: the core never interprets bearer tokens
// itself, it only consumes whatever UserID this package resolves. This
// is a concrete, deliberately simple resolver that derives a stable
// identity from the request with no session state, using an
// OAuth-style Bearer token.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingToken is returned when a request carries no (or a malformed)
// Authorization header.
var ErrMissingToken = errors.New("missing or malformed bearer token")

// Resolver implements the ResolveUser(request) -> UserID contract over
// net/http requests.
type Resolver struct {
	// Namespace seeds the deterministic UUID derivation. Deployments
	// that share a token space across environments should set a
	// distinct namespace per environment to avoid cross-environment
	// UserID collisions.
	Namespace uuid.UUID
}

// NewResolver constructs a Resolver. A zero Namespace uses uuid.Nil,
// matching uuid.NewSHA1's typical namespace-less usage for a
// single-tenant deployment.
func NewResolver(namespace uuid.UUID) *Resolver {
	return &Resolver{Namespace: namespace}
}

// ResolveUser extracts the bearer token from r's Authorization header and
// derives a stable UserID from it. Token validity (expiry, signature,
// revocation) is the auth collaborator's concern generally; this
// concrete resolver treats "non-empty token" as the whole of that
// contract.
func (res *Resolver) ResolveUser(r *http.Request) (uuid.UUID, error) {
	token, err := BearerToken(r)
	if err != nil {
		return uuid.Nil, err
	}
	return DeriveUserID(res.Namespace, token), nil
}

// BearerToken extracts the raw token from an "Authorization: Bearer
// <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// DeriveUserID deterministically maps a bearer token to a UserID: the
// same token always produces the same identity. It uses a version-5
// (SHA1-namespace) UUID so it composes with this module's
// uuid.UUID-typed user IDs instead of a hex string.
func DeriveUserID(namespace uuid.UUID, token string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(token))
}
