package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func TestVerifier_Valid(t *testing.T) {
	v, err := NewVerifier(Config{Secret: secret, Issuer: "phantom"})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	tok, err := Issue(secret, "phantom", "alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	uid, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if uid != "alice" {
		t.Errorf("uid = %q, want alice", uid)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: secret, Issuer: "phantom"})

	expired, _ := Issue(secret, "phantom", "alice", -time.Minute)
	wrongKey, _ := Issue([]byte("other"), "phantom", "alice", time.Minute)
	wrongIssuer, _ := Issue(secret, "elsewhere", "alice", time.Minute)
	noSubject, _ := Issue(secret, "phantom", "", time.Minute)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "phantom",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(secret)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice",
		Issuer:  "phantom",
	}).SignedString(secret)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"hs512":        hs512,
		"no expiry":    noExpiry,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(tok); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Verify = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Error("expected error without secret")
	}
}
