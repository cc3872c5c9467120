package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeToken reads the subject (jti) and expiry from a backend token without
// verifying its signature; the backend that issued it is trusted.
func DecodeToken(raw string) (TokenClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return TokenClaims{}, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return TokenClaims{}, fmt.Errorf("%w: jti claim missing", ErrMalformedToken)
	}
	out := TokenClaims{SubjectID: claims.ID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
