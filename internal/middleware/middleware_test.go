package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/model"
	"asklegal/internal/repository"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func withUserHeader(c *gin.Context) {
	if id := c.GetHeader("X-User"); id != "" {
		c.Set(ContextKeyUserID, id)
	}
	c.Next()
}

func serve(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if value != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestThrottlePerAccount(t *testing.T) {
	th := NewThrottle(0.5, 2)

	r := gin.New()
	r.Use(withUserHeader, th.PerAccount())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := serve(r, "X-User", "u1"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, w.Code)
		}
	}
	w := serve(r, "X-User", "u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After: got %q", got)
	}
	if got := gjson.Get(w.Body.String(), "retryAfterSeconds").Int(); got != 2 {
		t.Fatalf("retryAfterSeconds: got %d", got)
	}
	if w := serve(r, "X-User", "u2"); w.Code != http.StatusOK {
		t.Fatalf("accounts must have separate buckets, got %d", w.Code)
	}
	if w := serve(r, "X-User", ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous requests fall back to the client IP, got %d", w.Code)
	}
}

func TestThrottleRefillsAndForgetsIdleCallers(t *testing.T) {
	th := NewThrottle(1, 1)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	if !th.allow("user:a") {
		t.Fatal("first request must pass")
	}
	if th.allow("user:a") {
		t.Fatal("second request in the same instant must be refused")
	}
	now = now.Add(time.Second)
	if !th.allow("user:a") {
		t.Fatal("bucket must refill after one interval")
	}

	now = now.Add(bucketIdleTTL + time.Minute)
	th.allow("user:b")
	th.mu.Lock()
	_, kept := th.buckets["user:a"]
	count := len(th.buckets)
	th.mu.Unlock()
	if kept || count != 1 {
		t.Fatalf("idle bucket should be swept, have %d buckets", count)
	}
}

func TestNewThrottleMinimumBurst(t *testing.T) {
	if th := NewThrottle(1, 0); th.burst != 1 {
		t.Fatalf("burst: got %d", th.burst)
	}
}

func TestRequireUser(t *testing.T) {
	tokens := service.NewJWTServiceWithKey("secret", "asklegal", "asklegal-web")
	token, err := tokens.GenerateToken("u1", "jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	foreign, err := service.NewJWTServiceWithKey("secret", "elsewhere", "asklegal-web").GenerateToken("u1", "jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	r := gin.New()
	r.GET("/", RequireUser(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c)+"/"+GetUsername(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "sign in to continue"},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized, "sign in to continue"},
		{"empty bearer", "Bearer   ", http.StatusUnauthorized, "sign in to continue"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"other issuer", "Bearer " + foreign, http.StatusUnauthorized, "token was not issued for this service"},
		{"valid", "Bearer " + token, http.StatusOK, "u1/jane"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "u1/jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, "Authorization", tt.header)
			if w.Code != tt.status {
				t.Fatalf("status: got %d want %d", w.Code, tt.status)
			}
			got := w.Body.String()
			if tt.status != http.StatusOK {
				got = gjson.Get(got, "error").String()
			}
			if got != tt.body {
				t.Fatalf("body: got %q want %q", got, tt.body)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := repository.NewUserRepository(db)
	ctx := context.Background()
	admin := &model.User{Username: "root", PasswordHash: "x", IsAdmin: true}
	member := &model.User{Username: "jane", PasswordHash: "x"}
	for _, u := range []*model.User{admin, member} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
	}

	r := gin.New()
	r.GET("/", withUserHeader, RequireAdmin(users), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		userID string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"deleted account", "gone", http.StatusUnauthorized},
		{"member", member.ID, http.StatusForbidden},
		{"admin", admin.ID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(r, "X-User", tt.userID); w.Code != tt.status {
				t.Fatalf("status: got %d want %d", w.Code, tt.status)
			}
		})
	}
}
