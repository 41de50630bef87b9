package backend

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParseUserID extracts the user id (sub claim) from the access token without
// verifying the signature. The backend is the verifier; the client only
// needs to know which rows are its own.
func ParseUserID(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return sub, nil
}

// ParseDisplayName extracts a human-readable name from the access token's
// claims, trying name, preferred_username and email in that order. Empty when
// the token carries none.
func ParseDisplayName(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"name", "preferred_username", "email"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// TokenExpiry returns the exp claim of the access token, or zero time if the
// token has no expiry.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
