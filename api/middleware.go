package api

import (
	"context"
	"net/http"
	"strings"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/repositories"
)

type contextKey string

const userContextKey contextKey = "user"

// Authenticated wraps a handler and rejects requests that do not carry a
// valid bearer token. The resolved account is stored on the request
// context so handlers never re-parse the credential.
func Authenticated(verifier contract.Verifier, users repositories.IUserRepository, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		user, err := users.GetUserByID(userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// UserFrom returns the account resolved by the Authenticated middleware.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(domain.User)
	return user, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return r.URL.Query().Get("token")
}
