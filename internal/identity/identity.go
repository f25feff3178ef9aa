package identity

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookpage-app/bookpage/libs/auth"
)

type ctxKey struct{}

// User is the authenticated owner attached to the request context.
type User struct {
	BusinessID string
	Subject    string
	Role       string
}

// Config holds the two accepted credentials: dashboard JWTs signed with
// JWTSecret, and a static API key (bcrypt hash) scoped to one business for
// scripts and integrations.
type Config struct {
	JWTSecret        string
	APIKeyHash       string // bcrypt hash of the raw key, may be empty
	APIKeyBusinessID string
}

// FromContext returns the authenticated user, or nil outside RequireOwner.
func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

// RequireOwner authenticates owner-dashboard requests via Bearer JWT or
// X-Api-Key and rejects everything else with a 401.
func RequireOwner(cfg Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := authenticate(cfg, r); u != nil {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})
}

func authenticate(cfg Config, r *http.Request) *User {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		claims, err := auth.ParseAndVerifyHS256(strings.TrimPrefix(h, "Bearer "), cfg.JWTSecret)
		if err == nil && claims.BusinessID != "" {
			return &User{BusinessID: claims.BusinessID, Subject: claims.Sub, Role: claims.Role}
		}
		return nil
	}
	if key := r.Header.Get("X-Api-Key"); key != "" && cfg.APIKeyHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(cfg.APIKeyHash), []byte(key)) == nil {
			return &User{BusinessID: cfg.APIKeyBusinessID, Subject: "api-key", Role: "owner"}
		}
	}
	return nil
}
