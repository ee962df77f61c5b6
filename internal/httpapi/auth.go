package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for client data
type contextKey string

const clientContextKey contextKey = "client"

// Claims are the JWT claims accepted on client endpoints.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// IssueToken signs an HS256 token for subject, valid for ttl.
func IssueToken(secret, subject, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// withAuth requires a valid JWT when a secret is configured. Browsers cannot
// set headers on WebSocket requests, so the token may also come in the
// "token" query parameter.
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.JWTSecret == "" {
			next.ServeHTTP(w, req)
			return
		}

		tokenString := bearerToken(req)
		if tokenString == "" {
			tokenString = req.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, `{"error": "missing token"}`, http.StatusUnauthorized)
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(req.Context(), clientContextKey, claims)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// getClaims extracts the authenticated client from context
func getClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(clientContextKey).(*Claims)
	return c
}

// withAdmin requires the admin API key in X-Admin-Key or as a bearer token.
func (r *Router) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.AdminAPIKey == "" {
			http.Error(w, `{"error": "admin API disabled"}`, http.StatusForbidden)
			return
		}

		key := req.Header.Get("X-Admin-Key")
		if key == "" {
			key = bearerToken(req)
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(r.cfg.AdminAPIKey)) != 1 {
			http.Error(w, `{"error": "admin access required"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, req)
	}
}

func bearerToken(req *http.Request) string {
	parts := strings.SplitN(req.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
