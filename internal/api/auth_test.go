package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"marketday/internal/gameerr"
	"marketday/internal/store"
)

func newTestServer(secret string) *Server {
	return &Server{JWTSecret: secret}
}

func TestGenerateTokenRoundTripsThroughParseToken(t *testing.T) {
	s := newTestServer("test-secret")

	token, expiresAt, err := s.generateToken("user-1", store.RoleAdmin)
	if err != nil {
		t.Fatalf("generateToken returned error: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatalf("expected a non-zero expiry")
	}

	claims, err := s.parseToken(token)
	if err != nil {
		t.Fatalf("parseToken returned error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != store.RoleAdmin {
		t.Fatalf("claims=%+v, expected userId=user-1 role=ADMIN", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	signer := newTestServer("secret-a")
	verifier := newTestServer("secret-b")

	token, _, err := signer.generateToken("user-1", store.RoleUser)
	if err != nil {
		t.Fatalf("generateToken returned error: %v", err)
	}

	if _, err := verifier.parseToken(token); err == nil {
		t.Fatalf("expected parseToken to reject a token signed with a different secret")
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	r := gin.New()
	r.Use(s.AuthMiddleware())
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401 without an Authorization header", w.Code)
	}
}

func TestAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	token, _, err := s.generateToken("user-1", store.RoleUser)
	if err != nil {
		t.Fatalf("generateToken returned error: %v", err)
	}

	var seenUserID string
	r := gin.New()
	r.Use(s.AuthMiddleware())
	r.GET("/protected", func(c *gin.Context) {
		seenUserID = currentUserID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200 with a valid token", w.Code)
	}
	if seenUserID != "user-1" {
		t.Fatalf("currentUserID=%q, expected user-1", seenUserID)
	}
}

func TestAdminMiddlewareRejectsNonAdminRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	token, _, _ := s.generateToken("user-1", store.RoleUser)

	r := gin.New()
	r.Use(s.AuthMiddleware(), s.AdminMiddleware())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d, expected 403 for a non-admin role", w.Code)
	}
}

func TestAdminMiddlewareAcceptsAdminRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	token, _, _ := s.generateToken("root", store.RoleAdmin)

	r := gin.New()
	r.Use(s.AuthMiddleware(), s.AdminMiddleware())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200 for an admin role", w.Code)
	}
}

func TestAdminMiddlewareRejectsMismatchedAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	s.AdminSecret = "super-secret-admin-key"
	token, _, _ := s.generateToken("root", store.RoleAdmin)

	r := gin.New()
	r.Use(s.AuthMiddleware(), s.AdminMiddleware())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Admin-Key", "wrong-key")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d, expected 403 for a mismatched X-Admin-Key", w.Code)
	}
}

func TestAdminMiddlewareAcceptsMatchingAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestServer("secret")
	s.AdminSecret = "super-secret-admin-key"
	token, _, _ := s.generateToken("root", store.RoleAdmin)

	r := gin.New()
	r.Use(s.AuthMiddleware(), s.AdminMiddleware())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Admin-Key", "super-secret-admin-key")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200 when X-Admin-Key matches", w.Code)
	}
}

func TestWriteGameErrMapsKindToHTTPStatusAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		writeGameErr(c, gameerr.New(gameerr.InsufficientFunds, "insufficient cash for purchase"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400 for INSUFFICIENT_FUNDS", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "INSUFFICIENT_FUNDS") || !strings.Contains(body, "insufficient cash for purchase") {
		t.Fatalf("body=%q, expected it to surface the kind and message", body)
	}
}

func TestWriteGameErrNeverLeaksWrappedCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", errSentinel))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	r.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "sentinel cause text") {
		t.Fatalf("body=%q, wrapped cause text must never reach the client", w.Body.String())
	}
}

func TestUserViewProjectsCamelCaseFields(t *testing.T) {
	u := store.User{
		ID:          "u1",
		Username:    "alice",
		DisplayName: "Alice",
		Role:        store.RoleUser,
		Cash:        100.5,
	}
	view := userView(u)
	if view["userId"] != "u1" || view["username"] != "alice" || view["cash"] != 100.5 {
		t.Fatalf("userView=%v, unexpected projection", view)
	}
}

var errSentinel = &sentinelErr{"sentinel cause text"}

type sentinelErr struct{ msg string }

func (e *sentinelErr) Error() string { return e.msg }
