// credential/extractor.go

// Package credential decodes the bearer token carried inside a webhook
// payload. The signature is NOT verified here: the token is only forwarded to
// the backend, which accepts or rejects it on first use. Treat the decoded
// identity as a label for logging and attribution, never as proof.
package credential

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// Claims is the subset of backend token claims the engine reads.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	User  struct {
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	} `json:"user,omitempty"`
}

var parser = jwt.NewParser()

// Extract decodes raw into a Credential. raw may carry a "Bearer " prefix.
func Extract(raw string) (*model.Credential, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", sync_errors.ErrInvalidCredential)
	}
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three dot-separated segments", sync_errors.ErrInvalidCredential)
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", sync_errors.ErrInvalidCredential, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", sync_errors.ErrInvalidCredential)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", sync_errors.ErrInvalidCredential)
	}

	return &model.Credential{
		PrincipalID:    claims.Subject,
		PrincipalLabel: principalLabel(claims),
		ExpiresAt:      claims.ExpiresAt.Time.UTC(),
		Token:          token,
	}, nil
}

func principalLabel(c *Claims) string {
	switch {
	case c.Email != "":
		return c.Email
	case c.User.Email != "":
		return c.User.Email
	case c.User.Name != "":
		return c.User.Name
	}
	return c.Subject
}

// Mint signs claims for a principal with an HMAC key. The backend never sees
// these tokens; they exist so tests and local tooling can produce payloads.
func Mint(principalID, label string, expiresAt time.Time, key []byte) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: label,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
