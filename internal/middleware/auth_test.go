package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rankboard/rankboard/internal/logging"
)

func newTestAuth(t *testing.T) *AuthMiddleware {
	t.Helper()
	return NewAuthMiddleware("test-secret", time.Hour, logging.New("test"), []string{"/healthz"})
}

func TestIssueAndValidateToken(t *testing.T) {
	m := newTestAuth(t)

	token, err := m.IssueToken("u1", "a@example.com", "alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "a@example.com" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := newTestAuth(t)
	if _, err := m.ValidateToken("not-a-token"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	other := NewAuthMiddleware("other-secret", time.Hour, logging.New("test"), nil)
	token, err := other.IssueToken("u1", "", "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := newTestAuth(t).ValidateToken(token); err == nil {
		t.Fatalf("expected validation error for foreign token")
	}
}

func TestHandlerAcceptsBearerAndCookie(t *testing.T) {
	m := newTestAuth(t)
	token, err := m.IssueToken("u1", "", "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var sawUserID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserID = GetUserID(r.Context())
	}))

	// Bearer header.
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sawUserID != "u1" {
		t.Fatalf("bearer auth failed: status=%d user=%q", rec.Code, sawUserID)
	}

	// Cookie.
	sawUserID = ""
	req = httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sawUserID != "u1" {
		t.Fatalf("cookie auth failed: status=%d user=%q", rec.Code, sawUserID)
	}
}

func TestHandlerRejectsMissingCredentials(t *testing.T) {
	m := newTestAuth(t)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandlerSkipsConfiguredPaths(t *testing.T) {
	m := newTestAuth(t)
	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("skip path should pass through: called=%v status=%d", called, rec.Code)
	}
}
