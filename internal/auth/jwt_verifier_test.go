package auth

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"collabedit/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHMACVerifier_VerifyToken(t *testing.T) {
	verifier, err := NewHMACVerifier("test-secret", newTestLogger())
	if err != nil {
		t.Fatalf("NewHMACVerifier() error = %v", err)
	}

	valid, _ := SignHS256("test-secret", "user-1", "alice", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	expired, _ := SignHS256("test-secret", "user-1", "alice", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongSecret, _ := SignHS256("other-secret", "user-1", "alice", jwt.RegisteredClaims{})
	noSubject, _ := SignHS256("test-secret", "", "alice", jwt.RegisteredClaims{})
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", valid, false},
		{"expired token", expired, true},
		{"wrong secret", wrongSecret, true},
		{"missing subject", noSubject, true},
		{"unsigned token", none, true},
		{"garbage", "not-a-token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.VerifyToken(tt.token)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if claims.GetUserID() != "user-1" {
				t.Errorf("user ID = %q, want user-1", claims.GetUserID())
			}
			if claims.Username() != "alice" {
				t.Errorf("username = %q, want alice", claims.Username())
			}
		})
	}
}

func TestNewVerifiers_RejectEmptyConfig(t *testing.T) {
	if _, err := NewHMACVerifier("", newTestLogger()); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewJWKSVerifier("", newTestLogger()); err == nil {
		t.Error("expected error for empty JWKS URL")
	}
}

func TestClaims_UsernameFallsBackToSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}}
	if c.Username() != "user-9" {
		t.Errorf("Username() = %q, want user-9", c.Username())
	}
}
