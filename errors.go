package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrTryRefreshToken means the access token cannot be used as is; the
	// client should call the refresh endpoint.
	ErrTryRefreshToken = errors.New("try refresh token")
	// ErrUnauthorised means there is no usable session.
	ErrUnauthorised = errors.New("unauthorised")
	// ErrTokenTheftDetected means a rotated refresh token was replayed. The
	// session has been revoked.
	ErrTokenTheftDetected = errors.New("token theft detected")
	// ErrInvalidClaims means one or more claim validators failed.
	ErrInvalidClaims = errors.New("invalid claims")
	// ErrInvalidTokenStructure means a decoded access token lacks required fields.
	ErrInvalidTokenStructure = errors.New("invalid access token structure")
	// ErrInsecureConfiguration means cookies would be sent with SameSite=None
	// without the Secure flag across non-local domains.
	ErrInsecureConfiguration = errors.New("insecure session configuration")
	// ErrProtectedClaim is returned when a payload update touches a key owned by the session layer.
	ErrProtectedClaim = errors.New("protected access token claim")
	// ErrEngineNotReady is returned by adapters handed a nil engine.
	ErrEngineNotReady = errors.New("session engine not ready")
	// ErrCoreUnavailable wraps failures talking to the authentication core.
	ErrCoreUnavailable = errors.New("session core unavailable")
)

// TryRefreshTokenError carries the reason a verification asked for a refresh.
type TryRefreshTokenError struct {
	Reason string
}

func (e *TryRefreshTokenError) Error() string {
	if e.Reason == "" {
		return ErrTryRefreshToken.Error()
	}
	return ErrTryRefreshToken.Error() + ": " + e.Reason
}

func (e *TryRefreshTokenError) Is(target error) bool { return target == ErrTryRefreshToken }

// UnauthorisedError reports a missing or dead session. ClearTokens tells
// adapters whether the client's tokens should be removed.
type UnauthorisedError struct {
	ClearTokens bool
	Reason      string
}

func (e *UnauthorisedError) Error() string {
	if e.Reason == "" {
		return ErrUnauthorised.Error()
	}
	return ErrUnauthorised.Error() + ": " + e.Reason
}

func (e *UnauthorisedError) Is(target error) bool { return target == ErrUnauthorised }

// TokenTheftError identifies the session revoked after refresh token reuse.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
	RecipeUserID  string
}

func (e *TokenTheftError) Error() string {
	return fmt.Sprintf("%s: session %s", ErrTokenTheftDetected, e.SessionHandle)
}

func (e *TokenTheftError) Is(target error) bool { return target == ErrTokenTheftDetected }

// ClaimValidationError is one failed validator.
type ClaimValidationError struct {
	ID     string         `json:"id"`
	Reason map[string]any `json:"reason,omitempty"`
}

// InvalidClaimsError lists every failed validator.
type InvalidClaimsError struct {
	Failures []ClaimValidationError
}

func (e *InvalidClaimsError) Error() string {
	return fmt.Sprintf("%s: %d validator(s) failed", ErrInvalidClaims, len(e.Failures))
}

func (e *InvalidClaimsError) Is(target error) bool { return target == ErrInvalidClaims }

// ShouldClearTokens reports whether err requires removing the client's tokens.
func ShouldClearTokens(err error) bool {
	if errors.Is(err, ErrTokenTheftDetected) {
		return true
	}
	var unauthorised *UnauthorisedError
	if errors.As(err, &unauthorised) {
		return unauthorised.ClearTokens
	}
	return false
}

func tryRefresh(reason string) error {
	return &TryRefreshTokenError{Reason: reason}
}

func unauthorised(clearTokens bool, reason string) error {
	return &UnauthorisedError{ClearTokens: clearTokens, Reason: reason}
}
