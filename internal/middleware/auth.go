package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// Claims represents the JWT claims accepted by the API. Subject is the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and stores the caller in the request context
func AuthMiddleware(cfg *config.Config, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.Subject == "" {
				log.WithError(err).WithField("path", r.URL.Path).Warn("Token validation failed")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			user := models.User{
				ID:    claims.Subject,
				Name:  claims.Name,
				Email: claims.Email,
				Phone: claims.Phone,
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns ctx carrying user.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated caller.
func GetUser(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

// GetUserID returns the authenticated user id or "".
func GetUserID(ctx context.Context) string {
	user, _ := GetUser(ctx)
	return user.ID
}
