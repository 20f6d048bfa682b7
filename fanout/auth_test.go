package fanout

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTAuthenticatorRoundTrip(t *testing.T) {
	auth := NewJWTAuthenticator([]byte("secret"), "livesync")

	token, err := auth.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, err := auth.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("Expected user-1, got %q", userID)
	}
}

func TestJWTAuthenticatorRejects(t *testing.T) {
	auth := NewJWTAuthenticator([]byte("secret"), "livesync")

	expired, _ := auth.Issue("user-1", -time.Minute)
	otherSecret, _ := NewJWTAuthenticator([]byte("other"), "livesync").Issue("user-1", time.Minute)
	otherIssuer, _ := NewJWTAuthenticator([]byte("secret"), "elsewhere").Issue("user-1", time.Minute)
	noSubject, _ := auth.Issue("", time.Minute)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"wrong issuer", otherIssuer},
		{"no subject", noSubject},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(tt.token)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestJWTAuthenticatorWithoutIssuer(t *testing.T) {
	auth := NewJWTAuthenticator([]byte("secret"), "")
	token, _ := NewJWTAuthenticator([]byte("secret"), "anyone").Issue("user-2", time.Minute)

	userID, err := auth.Authenticate(token)
	if err != nil || userID != "user-2" {
		t.Fatalf("Expected user-2, got %q (%v)", userID, err)
	}
}
