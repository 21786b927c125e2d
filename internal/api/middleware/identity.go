package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/api/shared"
)

// UserIDHeader carries the caller's identity. Authentication itself happens
// at the gateway in front of this service; the header is trusted here.
const UserIDHeader = "X-User-ID"

// RequireUser extracts the caller's user ID from the request header and
// stores it in the context. Requests without a valid UUID are rejected.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing "+UserIDHeader+" header")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid "+UserIDHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
