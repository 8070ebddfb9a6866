package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TokenVerifier is the slice of the service the middleware needs.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (User, error)
}

// Authenticator resolves bearer tokens and attaches the actor to the request
// context. Requests without a token pass through unauthenticated; permission
// middleware downstream rejects them.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := verifier.VerifyToken(r.Context(), raw)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), user.ID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
