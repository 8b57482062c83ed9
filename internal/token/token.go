// Package token supplies the API access token used for REST bearer auth
// and the WebSocket query parameter.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/inercia/chatline/internal/secrets"
)

// ErrNoToken is returned when no access token is configured.
var ErrNoToken = errors.New("no access token configured")

// Provider returns the current access token.
// Implementations must be safe for concurrent use.
type Provider interface {
	AccessToken() (string, error)
}

// Static is a fixed token.
type Static string

func (s Static) AccessToken() (string, error) {
	t := strings.TrimSpace(string(s))
	if t == "" {
		return "", ErrNoToken
	}
	return t, nil
}

// Keychain reads the token from a secret store.
type Keychain struct {
	Store secrets.SecretStore
}

func (k Keychain) AccessToken() (string, error) {
	store := k.Store
	if store == nil {
		store = secrets.Default()
	}
	t, err := secrets.AccessToken(store)
	if errors.Is(err, secrets.ErrNotFound) || errors.Is(err, secrets.ErrNotSupported) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token from keychain: %w", err)
	}
	return Static(t).AccessToken()
}

// Chain returns the token of the first provider that has one.
type Chain []Provider

func (c Chain) AccessToken() (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		t, err := p.AccessToken()
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// signingAlgorithms are the JWS algorithms accepted when reading claims.
var signingAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.EdDSA,
}

// ExpiresAt returns the exp claim of a JWT access token without verifying
// its signature. ok is false when the token carries no expiry.
func ExpiresAt(raw string) (exp time.Time, ok bool, err error) {
	tok, err := jwt.ParseSigned(raw, signingAlgorithms)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse token: %w", err)
	}
	var claims jwt.Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}, false, fmt.Errorf("read token claims: %w", err)
	}
	if claims.Expiry == nil {
		return time.Time{}, false, nil
	}
	return claims.Expiry.Time(), true, nil
}

// Expired reports whether raw is a JWT whose expiry is before now.
// Tokens that are not JWTs or carry no expiry are never expired.
func Expired(raw string, now time.Time) bool {
	exp, ok, err := ExpiresAt(raw)
	if err != nil || !ok {
		return false
	}
	return exp.Before(now)
}
