package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks HMAC signed bearer tokens and hands back their claims.
type Verifier struct {
	secret    []byte
	ignoreExp bool
}

// NewVerifier creates a verifier. With ignoreExp, expired tokens are still
// accepted, which is handy against long lived test fixtures.
func NewVerifier(secret string, ignoreExp bool) *Verifier {
	return &Verifier{secret: []byte(secret), ignoreExp: ignoreExp}
}

// Enabled reports whether a secret is configured. Without one nothing
// verifies.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify validates and parses a token into its claims
func (v *Verifier) Verify(tokenString string) (map[string]any, error) {
	if !v.Enabled() {
		return nil, errors.New("no token secret configured")
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.ignoreExp {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign creates a token for claims, expiring after ttl when ttl is positive.
func (v *Verifier) Sign(claims map[string]any, ttl time.Duration) (string, error) {
	mapClaims := jwt.MapClaims{"iat": jwt.NewNumericDate(time.Now())}
	for k, value := range claims {
		mapClaims[k] = value
	}
	if ttl > 0 {
		mapClaims["exp"] = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(v.secret)
}

// ParseBearer extracts the token of an "Authorization: Bearer <token>" header.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
