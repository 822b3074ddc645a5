package core

import (
	"context"
	"time"
)

// Status is the outcome tag of a core call.
type Status string

const (
	StatusOK                 Status = "OK"
	StatusUnauthorised       Status = "UNAUTHORISED"
	StatusTryRefreshToken    Status = "TRY_REFRESH_TOKEN"
	StatusTokenTheftDetected Status = "TOKEN_THEFT_DETECTED"
)

// TokenInfo is a minted token with its lifetime.
type TokenInfo struct {
	Token     string    `json:"token"`
	Expiry    time.Time `json:"expiry"`
	CreatedAt time.Time `json:"createdTime"`
}

// Session identifies a session as reported by the core.
type Session struct {
	Handle        string         `json:"handle"`
	UserID        string         `json:"userId"`
	RecipeUserID  string         `json:"recipeUserId"`
	TenantID      string         `json:"tenantId"`
	UserDataInJWT map[string]any `json:"userDataInJWT,omitempty"`
	ExpiryTime    time.Time      `json:"expiryTime"`
}

type CreateSessionInput struct {
	TenantID              string         `json:"tenantId"`
	UserID                string         `json:"userId"`
	RecipeUserID          string         `json:"recipeUserId"`
	AccessTokenPayload    map[string]any `json:"userDataInJWT"`
	SessionDataInDatabase map[string]any `json:"userDataInDatabase"`
	DisableAntiCSRF       bool           `json:"disableAntiCsrf"`
}

type CreateSessionResult struct {
	Session       Session   `json:"session"`
	AccessToken   TokenInfo `json:"accessToken"`
	RefreshToken  TokenInfo `json:"refreshToken"`
	AntiCSRFToken string    `json:"antiCsrfToken,omitempty"`
}

type GetSessionInput struct {
	AccessToken     string `json:"accessToken"`
	AntiCSRFToken   string `json:"antiCsrfToken,omitempty"`
	DoAntiCSRFCheck bool   `json:"doAntiCsrfCheck"`
	CheckDatabase   bool   `json:"checkDatabase"`
}

type GetSessionResult struct {
	Status  Status  `json:"status"`
	Message string  `json:"message,omitempty"`
	Session Session `json:"session"`
	// AccessToken is set when the core issued a replacement access token.
	AccessToken *TokenInfo `json:"accessToken,omitempty"`
}

type RefreshSessionInput struct {
	RefreshToken    string `json:"refreshToken"`
	AntiCSRFToken   string `json:"antiCsrfToken,omitempty"`
	DisableAntiCSRF bool   `json:"disableAntiCsrf"`
}

type RefreshSessionResult struct {
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	Session       Session   `json:"session"`
	AccessToken   TokenInfo `json:"accessToken"`
	RefreshToken  TokenInfo `json:"refreshToken"`
	AntiCSRFToken string    `json:"antiCsrfToken,omitempty"`
}

type RegenerateAccessTokenResult struct {
	Status      Status     `json:"status"`
	Session     Session    `json:"session"`
	AccessToken *TokenInfo `json:"accessToken,omitempty"`
}

// SessionInformation is the full server-side view of a session.
type SessionInformation struct {
	Handle                           string         `json:"sessionHandle"`
	UserID                           string         `json:"userId"`
	RecipeUserID                     string         `json:"recipeUserId"`
	TenantID                         string         `json:"tenantId"`
	SessionDataInDatabase            map[string]any `json:"userDataInDatabase"`
	CustomClaimsInAccessTokenPayload map[string]any `json:"userDataInJWT"`
	Expiry                           time.Time      `json:"expiry"`
	TimeCreated                      time.Time      `json:"timeCreated"`
}

// Client is the authentication core as seen by the engine.
type Client interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error)
	GetSession(ctx context.Context, in GetSessionInput) (*GetSessionResult, error)
	RefreshSession(ctx context.Context, in RefreshSessionInput) (*RefreshSessionResult, error)
	// RegenerateAccessToken re-mints the access token of a live session with
	// newPayload as its custom claims.
	RegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*RegenerateAccessTokenResult, error)
	// RevokeSession reports whether the session existed.
	RevokeSession(ctx context.Context, handle string) (bool, error)
	RevokeSessionsByUserID(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error)
	// GetSessionInformation returns nil, nil for unknown handles.
	GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error)
	UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error)
}
