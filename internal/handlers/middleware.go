package handlers

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/utils"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxClaims
)

// Auth validates the bearer token and stashes the user id and claims in the
// request context.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := utils.VerifyToken(r, jwtSecret)
			if err != nil {
				utils.JSON(w, http.StatusUnauthorized, models.ErrorResponse{
					Code: "UNAUTHORIZED", Message: "missing or invalid token",
				})
				return
			}
			userID, err := utils.GetUserIDFromClaims(claims)
			if err != nil {
				utils.JSON(w, http.StatusUnauthorized, models.ErrorResponse{
					Code: "UNAUTHORIZED", Message: "missing or invalid token",
				})
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff gates staff-only routes. Must run after Auth.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !StaffFromContext(r.Context()) {
			utils.JSON(w, http.StatusForbidden, models.ErrorResponse{
				Code: "FORBIDDEN", Message: "staff role required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the authenticated user id, empty if unset.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

// StaffFromContext reports whether the request carries a staff role.
func StaffFromContext(ctx context.Context) bool {
	claims, ok := ctx.Value(ctxClaims).(jwt.MapClaims)
	return ok && utils.IsStaff(claims)
}
