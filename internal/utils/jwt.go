package utils

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthHeader = errors.New("missing or malformed Authorization header")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidClaims     = errors.New("invalid token claims")
)

// VerifyToken fetches the Authorization header (or a token query parameter,
// for websocket clients that cannot set headers), validates the JWT, and
// returns the claims if everything is valid.
func VerifyToken(r *http.Request, secret string) (jwt.MapClaims, error) {
	tokenStr := ""
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		tokenStr = strings.TrimPrefix(authz, "Bearer ")
	} else if q := r.URL.Query().Get("token"); q != "" {
		tokenStr = q
	}
	if tokenStr == "" {
		return nil, ErrMissingAuthHeader
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// GetUserIDFromClaims extracts the "sub" (user ID) from claims safely as a string.
func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub claim")
	}
	return sub, nil
}

// Staff roles that may resolve disputes and cancel matches.
var staffRoles = map[string]bool{
	"admin":            true,
	"staff":            true,
	"cdl_manager":      true,
	"hardcore_manager": true,
}

// IsStaff reports whether the claims carry a staff role.
func IsStaff(claims jwt.MapClaims) bool {
	roles, ok := claims["roles"].([]interface{})
	if !ok {
		return false
	}
	for _, r := range roles {
		if name, ok := r.(string); ok && staffRoles[name] {
			return true
		}
	}
	return false
}
