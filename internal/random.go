package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// SessionID is the 16-byte identity behind a session handle.
type SessionID [16]byte

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
)

func NewSessionID() (SessionID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

// String renders the canonical UUID form used as the public session handle.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

func ParseSessionID(handle string) (SessionID, error) {
	u, err := uuid.Parse(handle)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// RefreshHashHex is the form of a refresh hash embedded in access tokens.
func RefreshHashHex(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

func EncodeRefreshToken(handle string, secret [refreshSecretSize]byte) (string, error) {
	sid, err := ParseSessionID(handle)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	var sid SessionID
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])

	return sid.String(), secret, nil
}

// NewAntiCSRFToken returns a fresh token for anti-CSRF "via token" mode.
func NewAntiCSRFToken() string {
	return uuid.NewString()
}
