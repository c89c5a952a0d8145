package handlers

import (
	"net/http"
	"testing"

	"github.com/incidra/incidra/internal/api"
	"github.com/incidra/incidra/internal/middleware"
	"github.com/incidra/incidra/internal/testhelpers"
)

func setupAuthHandler(t *testing.T) (*http.ServeMux, *middleware.JWTAuthMiddleware) {
	t.Helper()
	hash, err := middleware.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth, 1).SetupRoutes(mux)
	return mux, jwtAuth
}

func TestHandleLogin(t *testing.T) {
	mux, jwtAuth := setupAuthHandler(t)

	var resp api.LoginResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin", Password: "s3cret"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	claims, err := jwtAuth.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("expected valid token: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("expected admin claims, got %s", claims.Username)
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	mux, _ := setupAuthHandler(t)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin", Password: "wrong"}).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/auth/login", nil).
		WithJSONBody(api.LoginRequest{Username: "admin"}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestHandleVerify(t *testing.T) {
	mux, jwtAuth := setupAuthHandler(t)

	token, _ := jwtAuth.GenerateToken("admin")
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/auth/verify", nil).
		WithBearerToken(token).
		Execute(mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("admin")

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/auth/verify", nil).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/auth/verify", nil).
		WithBearerToken("garbage").
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)
}
