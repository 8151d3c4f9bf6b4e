package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"asklegal/internal/model"
	"asklegal/internal/repository"
)

func newTestUserService(t *testing.T) *UserService {
	t.Helper()
	return NewUserServiceWithRepo(
		repository.NewUserRepository(openTestDB(t)),
		NewJWTServiceWithKey("test-secret", "asklegal", "asklegal-web"),
	)
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTServiceWithKey("test-secret", "asklegal", "asklegal-web")

	token, err := svc.GenerateToken("u1", "jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "jane" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTService_Rejects(t *testing.T) {
	issuer := NewJWTServiceWithKey("test-secret", "asklegal", "asklegal-web")
	token, err := issuer.GenerateToken("u1", "jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	expired := NewJWTServiceWithKey("test-secret", "asklegal", "asklegal-web")
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	oldToken, err := expired.GenerateToken("u1", "jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name    string
		svc     *JWTService
		token   string
		wantErr error
	}{
		{"garbage", issuer, "not-a-token", ErrInvalidToken},
		{"wrong secret", NewJWTServiceWithKey("other", "asklegal", "asklegal-web"), token, ErrInvalidToken},
		{"wrong issuer", NewJWTServiceWithKey("test-secret", "someone-else", "asklegal-web"), token, ErrInvalidIssuer},
		{"wrong audience", NewJWTServiceWithKey("test-secret", "asklegal", "mobile"), token, ErrInvalidAudience},
		{"expired", issuer, oldToken, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc.ValidateToken(tt.token); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &model.RegisterRequest{Username: "jane", Password: "correct horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash == "correct horse" {
		t.Fatal("password must be hashed")
	}
	if _, err := svc.Register(ctx, &model.RegisterRequest{Username: "jane", Password: "another one"}); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected ErrUsernameExists, got %v", err)
	}

	got, token, err := svc.Login(ctx, &model.LoginRequest{Username: "jane", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID || token == "" {
		t.Fatalf("unexpected login result: %+v %q", got, token)
	}

	for _, req := range []*model.LoginRequest{
		{Username: "jane", Password: "wrong"},
		{Username: "nobody", Password: "correct horse"},
	} {
		if _, _, err := svc.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %q, got %v", req.Username, err)
		}
	}
}

func TestUserService_ChangePassword(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &model.RegisterRequest{Username: "jane", Password: "first-password"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "wrong", "second-password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "first-password", "second-password"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, _, err := svc.Login(ctx, &model.LoginRequest{Username: "jane", Password: "second-password"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := svc.ChangePassword(ctx, "missing", "a", "b"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
