package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatrelay/internal/server/middleware"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// authChain builds the metadata+auth slice of the upgrade chain and captures
// the metadata the inner handler observes.
func authChain(captured **middleware.RequestMetadata) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, _ := middleware.ReqMetadataFrom(r.Context())
		*captured = meta
		w.WriteHeader(http.StatusOK)
	})
	return middleware.Chain(inner,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(newTestLogger(), testSecret),
	)
}

func TestAuthBindsVerifiedSubject(t *testing.T) {
	var meta *middleware.RequestMetadata
	handler := authChain(&meta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, testSecret, "42")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if meta == nil || meta.UserID != "42" {
		t.Fatalf("expected verified subject 42 in metadata, got %+v", meta)
	}
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	var meta *middleware.RequestMetadata
	handler := authChain(&meta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if meta == nil || meta.UserID != "7" {
		t.Fatalf("expected verified subject 7 in metadata, got %+v", meta)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	var meta *middleware.RequestMetadata
	handler := authChain(&meta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if meta != nil {
		t.Error("inner handler ran without a token")
	}
}

func TestAuthRejectsBadSignature(t *testing.T) {
	var meta *middleware.RequestMetadata
	handler := authChain(&meta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, "wrong-secret", "42")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if meta != nil {
		t.Error("inner handler ran with a forged token")
	}
}

func TestAuthRejectsTokenWithoutSubject(t *testing.T) {
	var meta *middleware.RequestMetadata
	handler := authChain(&meta)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, testSecret, "")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
