package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Claims are the token claims the platform's auth service issues.
// Session issuance lives outside the engine; we only verify and extract.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies platform-issued bearer tokens.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates middleware validating HS256 tokens.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// RequireAuth validates the Authorization header and stores the actor ID
// in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		actorID, err := uuid.Parse(claims.UserID)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid actor in token")
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorID returns the authenticated actor from the context, or uuid.Nil.
func GetActorID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(actorContextKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
