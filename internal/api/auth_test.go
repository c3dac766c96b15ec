package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"execution-core/internal/breaker"
	"execution-core/internal/mode"
	"execution-core/pkg/db"
)

const testSecret = "test-secret"

func newAuthServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	modes := mode.NewManager(nil, nil, nil, breaker.DefaultConfig())
	return NewServer(Deps{DB: database, Modes: modes, JWTSecret: testSecret})
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := issueToken("u1", testSecret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	userID, err := userFromToken(token, testSecret)
	if err != nil || userID != "u1" {
		t.Fatalf("userFromToken = %q, %v", userID, err)
	}

	if _, err := userFromToken(token, "other-secret"); err == nil {
		t.Errorf("token verified with the wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _ := issueToken("u1", testSecret, time.Now().Add(-time.Minute))
	if _, err := userFromToken(token, testSecret); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestForeignSigningMethodRejected(t *testing.T) {
	// Same secret, different HMAC variant: the verifier pins HS256.
	claims := authClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := userFromToken(token, testSecret); err == nil {
		t.Fatalf("HS512 token accepted")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"Basic dXNlcg==", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if ok != tt.ok || token != tt.token {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newAuthServer(t)
	token, _ := issueToken("u1", testSecret, time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/mode", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Router.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	s := newAuthServer(t)

	creds := map[string]string{"email": "trader@example.com", "password": "long-enough-pw"}
	if rec := postJSON(t, s, "/api/auth/register", creds); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d (body %s)", rec.Code, rec.Body)
	}

	// Duplicate registration conflicts.
	if rec := postJSON(t, s, "/api/auth/register", creds); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rec.Code)
	}

	// Short passwords never reach the store.
	weak := map[string]string{"email": "other@example.com", "password": "short"}
	if rec := postJSON(t, s, "/api/auth/register", weak); rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", rec.Code)
	}

	// Wrong password and unknown email both answer 401.
	bad := map[string]string{"email": creds["email"], "password": "wrong-password"}
	if rec := postJSON(t, s, "/api/auth/login", bad); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
	unknown := map[string]string{"email": "nobody@example.com", "password": "long-enough-pw"}
	if rec := postJSON(t, s, "/api/auth/login", unknown); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email status = %d", rec.Code)
	}

	rec := postJSON(t, s, "/api/auth/login", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d (body %s)", rec.Code, rec.Body)
	}
	var body struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.Token == "" || body.UserID == "" {
		t.Fatalf("login body = %s", rec.Body)
	}

	// The issued token authenticates as the registered user.
	userID, err := userFromToken(body.Token, testSecret)
	if err != nil || userID != body.UserID {
		t.Fatalf("token user = %q, %v, want %q", userID, err, body.UserID)
	}
}
