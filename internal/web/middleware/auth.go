package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sumfields/sumfields/internal/web/auth"
)

// APIKeyHeader carries a site API key
const APIKeyHeader = "X-API-Key"

// AuthConfig holds configuration for authentication middleware
type AuthConfig struct {
	// Tokens validates bearer tokens; nil disables token auth
	Tokens *auth.AuthService
	// APIKeyHash is the bcrypt hash of the site API key; empty disables
	// key auth
	APIKeyHash string
	// SkipPaths is a list of paths to skip authentication
	SkipPaths []string
	// Unauthorized writes the rejection response
	Unauthorized http.HandlerFunc
}

// Auth creates an authentication middleware. A request passes with a valid
// bearer token, or with the API key in the X-API-Key header or the api_key
// parameter.
func Auth(config AuthConfig) Middleware {
	reject := config.Unauthorized
	if reject == nil {
		reject = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skipPath := range config.SkipPaths {
				if r.URL.Path == skipPath {
					next.ServeHTTP(w, r)
					return
				}
			}

			if subject, ok := authenticate(config, r); ok {
				ctx := context.WithValue(r.Context(), SubjectKey, subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			reject(w, r)
		})
	}
}

func authenticate(config AuthConfig, r *http.Request) (string, bool) {
	if config.Tokens != nil {
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return "", false
			}
			claims, err := config.Tokens.ValidateToken(parts[1])
			if err != nil {
				return "", false
			}
			sub, _ := claims.GetSubject()
			if sub == "" {
				return "", false
			}
			return sub, true
		}
	}

	if config.APIKeyHash != "" {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != "" && auth.CheckKey(key, config.APIKeyHash) {
			return "api_key", true
		}
	}

	return "", false
}

// GetSubject returns the authenticated caller, or "" for open access
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(SubjectKey).(string); ok {
		return sub
	}
	return ""
}
