package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenResolver verifies bearer tokens issued by the external auth service and
// extracts the subject. Token issuance stays outside this platform.
type TokenResolver struct {
	secret []byte
}

// NewTokenResolver builds a resolver for HS256 tokens signed with secret.
func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret)}
}

// Subject returns the user id carried by a verified token.
func (t *TokenResolver) Subject(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", tk.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("identity: parse token: %w", err)
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("identity: token missing subject")
	}
	return subject, nil
}
