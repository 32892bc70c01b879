package roles

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const inviteAudience = "librarian:invite"

// Tokens encodes anonymized invitation tokens. The token carries only
// the opaque role id, never the invitee identity; the server resolves
// the role back to the real agent for authorization.
type Tokens struct {
	Secret []byte
	Now    func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Encode signs an invite token for a role id.
func (t Tokens) Encode(roleID string) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("invite token secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:  roleID,
		Audience: jwt.ClaimStrings{inviteAudience},
		IssuedAt: jwt.NewNumericDate(t.now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Decode verifies an invite token and returns the role id it names.
func (t Tokens) Decode(token string) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("invite token secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(inviteAudience),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid invite token")
	}
	return claims.Subject, nil
}
