package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookpage-app/bookpage/libs/auth"
)

func TestRequireOwner_ValidJWT(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}
	token, err := auth.SignHS256(auth.Claims{
		Sub:        "owner-1",
		BusinessID: "biz-1",
		Role:       "owner",
		Exp:        time.Now().Add(time.Hour).Unix(),
	}, cfg.JWTSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var got *User
	h := RequireOwner(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/owner/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.BusinessID != "biz-1" {
		t.Fatalf("expected user for biz-1, got %+v", got)
	}
}

func TestRequireOwner_BadToken(t *testing.T) {
	h := RequireOwner(Config{JWTSecret: "test-secret"}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/owner/stats", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOwner_NoCredentials(t *testing.T) {
	h := RequireOwner(Config{JWTSecret: "test-secret"}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owner/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOwner_APIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sk-live-abc"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := Config{JWTSecret: "test-secret", APIKeyHash: string(hash), APIKeyBusinessID: "biz-1"}

	var got *User
	h := RequireOwner(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/owner/stats", nil)
	req.Header.Set("X-Api-Key", "sk-live-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got == nil || got.BusinessID != "biz-1" {
		t.Fatalf("expected authenticated biz-1, got code %d user %+v", rec.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/owner/stats", nil)
	req.Header.Set("X-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rec.Code)
	}
}
