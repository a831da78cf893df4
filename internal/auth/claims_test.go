package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-signing"

	token, err := GenerateAccessToken("ops-laptop", RoleAdmin, secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops-laptop" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "ops-laptop")
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateAccessToken_NoSecret(t *testing.T) {
	if _, err := GenerateAccessToken("x", RoleOperator, "", 15); !errors.Is(err, ErrNoSecret) {
		t.Errorf("error = %v, want ErrNoSecret", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	good, err := GenerateAccessToken("ops", RoleOperator, "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	badRole, err := GenerateAccessToken("ops", Role("root"), "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	noSubject, err := GenerateAccessToken("", RoleOperator, "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "wrong-secret"},
		{"garbage", "not-a-valid-jwt", "correct-secret"},
		{"unknown role", badRole, "correct-secret"},
		{"missing subject", noSubject, "correct-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestTokenSource_CachesUntilNearExpiry(t *testing.T) {
	src := NewTokenSource("controller", "secret", 10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	first, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	now = now.Add(5 * time.Minute)
	second, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if second != first {
		t.Error("token should be reused while fresh")
	}

	now = now.Add(4*time.Minute + 30*time.Second)
	third, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if third == first {
		t.Error("token should be refreshed within a minute of expiry")
	}

	claims, err := ParseToken(third, "secret")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Role != RoleController {
		t.Errorf("Role = %q, want %q", claims.Role, RoleController)
	}
}
