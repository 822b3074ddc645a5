package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func basePayload(exp time.Time) map[string]any {
	return map[string]any{
		"sub":               "u1",
		"rsub":              "u1",
		"tId":               "public",
		"exp":               exp.Unix(),
		"iat":               time.Now().Unix(),
		"sessionHandle":     "s1",
		"refreshTokenHash1": "h1",
	}
}

func TestSignVerifyRoundTripEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m.Sign(basePayload(time.Now().Add(time.Minute)), 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tok, err := m.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.Version != LatestVersion {
		t.Fatalf("expected latest version, got %d", tok.Version)
	}
	if tok.Header["kid"] != "k1" {
		t.Fatalf("expected kid header, got %v", tok.Header["kid"])
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	raw, err := m.Sign(basePayload(time.Now().Add(-time.Minute)), Version5)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	tok, err := m.VerifySignature(raw)
	if err != nil {
		t.Fatalf("signature check should accept expired token: %v", err)
	}
	if tok.Payload["sessionHandle"] != "s1" {
		t.Fatalf("unexpected payload: %v", tok.Payload)
	}

	other, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("another-secret-another-secret")})
	if _, err := other.VerifySignature(raw); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for foreign key, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims(basePayload(time.Now().Add(time.Minute))))
	tok.Header["version"] = "5"
	raw, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(raw); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestSignRejectsIncompletePayload(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	payload := basePayload(time.Now().Add(time.Minute))
	delete(payload, "sessionHandle")
	if _, err := m.Sign(payload, Version5); !errors.Is(err, ErrInvalidStructure) {
		t.Fatalf("expected ErrInvalidStructure, got %v", err)
	}
	if _, err := m.Sign(basePayload(time.Now()), VersionLegacy); err == nil {
		t.Fatal("expected legacy signing to be refused")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: "rs512"}); err == nil {
		t.Fatal("expected unsupported method to fail")
	}
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected hs256 without key to fail")
	}
	pub, _ := newEdKeys(t)
	if _, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k2", VerifyKeys: map[string][]byte{"k1": pub}}); err == nil {
		t.Fatal("expected KeyID outside VerifyKeys to fail")
	}
}
