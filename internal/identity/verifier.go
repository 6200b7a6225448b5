// Package identity resolves bearer credentials to platform users. Tokens
// are HMAC-signed JWTs issued by the auth service; verification happens
// locally so the chat hot path never calls out.
package identity

import (
	"errors"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID      int64
	DisplayName string
	Role        string
}

type tokenClaims struct {
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens with a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyBearer validates an "Bearer <token>" header value.
func (v *Verifier) VerifyBearer(header string) (Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Claims{}, ErrInvalidToken
	}
	return v.Verify(parts[1])
}

// Verify validates a raw token string and extracts the identity claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: userID, DisplayName: claims.DisplayName, Role: claims.Role}, nil
}

// Sign issues a token for the user; used by tests and local tooling.
func (v *Verifier) Sign(userID int64, displayName, role string) (string, error) {
	claims := tokenClaims{
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(userID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
