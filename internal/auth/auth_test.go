package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestValidateClaimVariants(t *testing.T) {
	jv, err := NewJWTValidator("HS256", secret, "")
	if err != nil {
		t.Fatal(err)
	}
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"userId", jwt.MapClaims{"userId": "u1", "exp": exp}, "u1"},
		{"user_id", jwt.MapClaims{"user_id": "u2", "exp": exp}, "u2"},
		{"id", jwt.MapClaims{"id": "u3", "exp": exp}, "u3"},
		{"_id", jwt.MapClaims{"_id": "u4", "exp": exp}, "u4"},
		{"sub", jwt.MapClaims{"sub": "u5", "exp": exp}, "u5"},
		{"numeric id", jwt.MapClaims{"id": float64(42), "exp": exp}, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jv.Validate(sign(t, tt.claims, secret))
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	jv, _ := NewJWTValidator("HS256", secret, "")
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", sign(t, jwt.MapClaims{"userId": "u1"}, "other")},
		{"expired", sign(t, jwt.MapClaims{"userId": "u1", "exp": time.Now().Add(-time.Hour).Unix()}, secret)},
		{"no subject", sign(t, jwt.MapClaims{"role": "worker"}, secret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := jv.Validate(tt.token); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestNewValidatorErrors(t *testing.T) {
	if _, err := NewJWTValidator("HS256", "", ""); err == nil {
		t.Errorf("expected missing secret error")
	}
	if _, err := NewJWTValidator("none", "x", ""); err == nil {
		t.Errorf("expected unsupported alg error")
	}
	if _, err := NewJWTValidator("RS256", "", "/does/not/exist.pem"); err == nil {
		t.Errorf("expected missing key file error")
	}
}

func TestResolver(t *testing.T) {
	jv, _ := NewJWTValidator("HS256", secret, "")
	users := repository.NewMemoryUserDirectory(&domain.User{ID: "alice"})
	r := NewResolver(jv, users)
	ctx := context.Background()

	uid, err := r.Resolve(ctx, sign(t, jwt.MapClaims{"userId": "alice"}, secret))
	if err != nil || uid != "alice" {
		t.Fatalf("expected alice, got %q (%v)", uid, err)
	}
	if _, err := r.Resolve(ctx, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected unauthorized for empty token, got %v", err)
	}
	if _, err := r.Resolve(ctx, sign(t, jwt.MapClaims{"userId": "ghost"}, secret)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected unauthorized for unknown user, got %v", err)
	}
	if _, err := r.Resolve(ctx, "junk"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected unauthorized for malformed token, got %v", err)
	}
}

func TestParseBearer(t *testing.T) {
	if got := ParseBearer("Bearer abc"); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if got := ParseBearer("bearer abc"); got != "abc" {
		t.Errorf("expected case-insensitive scheme, got %q", got)
	}
	if got := ParseBearer("Basic abc"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := ParseBearer("Bearer "); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
