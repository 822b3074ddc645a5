package goSession

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/MrEthical07/goSession/core"
	"github.com/MrEthical07/goSession/jwt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Functions is the overridable surface of the engine. Every request-level
// and token-level operation reaches the core through it.
//
// To override a subset, embed the Functions received by an [Interceptor] and
// redefine the methods of interest.
type Functions interface {
	CreateNewSession(ctx context.Context, in CreateSessionInput, disableAntiCSRF bool) (*Session, error)
	// GetSession returns (nil, nil) when the token is unusable and in.SessionRequired is false.
	GetSession(ctx context.Context, in TokenVerifyInput) (*Session, error)
	RefreshSession(ctx context.Context, in TokenRefreshInput) (*Session, error)
	RegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*core.RegenerateAccessTokenResult, error)
	RevokeSession(ctx context.Context, handle string) (bool, error)
	RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error)
	GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error)
	UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error)
	GetGlobalClaimValidators(ctx context.Context, in GlobalValidatorsInput) ([]ClaimValidator, error)
	ValidateClaims(ctx context.Context, in ValidateClaimsInput) (*ValidateClaimsResult, error)
}

// Interceptor wraps a Functions value. The first interceptor passed to
// [Builder.WithInterceptors] is the outermost.
type Interceptor func(next Functions) Functions

// TokenVerifyInput is the token-level verification request.
type TokenVerifyInput struct {
	AccessToken     string
	AntiCSRFToken   string
	DoAntiCSRFCheck bool
	CheckDatabase   bool
	SessionRequired bool
}

// TokenRefreshInput is the token-level refresh request.
type TokenRefreshInput struct {
	RefreshToken    string
	AntiCSRFToken   string
	DisableAntiCSRF bool
}

// GlobalValidatorsInput identifies the session whose validators are requested.
type GlobalValidatorsInput struct {
	UserID       string
	RecipeUserID string
	TenantID     string
	// Validators are the validators registered globally.
	Validators []ClaimValidator
}

// ValidateClaimsInput describes one claim validation pass.
type ValidateClaimsInput struct {
	UserID       string
	RecipeUserID string
	TenantID     string
	Payload      map[string]any
	Validators   []ClaimValidator
}

// ValidateClaimsResult holds the refetched payload (nil when nothing changed)
// and every failure.
type ValidateClaimsResult struct {
	PayloadUpdate map[string]any
	Failures      []ClaimValidationError
}

func chainFunctions(base Functions, interceptors []Interceptor) Functions {
	fns := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		if interceptors[i] == nil {
			continue
		}
		fns = interceptors[i](fns)
	}
	return fns
}

/*
====================================
BASE IMPLEMENTATION
====================================
*/

type baseFunctions struct {
	e *Engine
}

func (f baseFunctions) CreateNewSession(ctx context.Context, in CreateSessionInput, disableAntiCSRF bool) (*Session, error) {
	res, err := f.e.core.CreateSession(ctx, core.CreateSessionInput{
		TenantID:              in.TenantID,
		UserID:                in.UserID,
		RecipeUserID:          in.RecipeUserID,
		AccessTokenPayload:    in.AccessTokenPayload,
		SessionDataInDatabase: in.SessionDataInDatabase,
		DisableAntiCSRF:       disableAntiCSRF,
	})
	if err != nil {
		return nil, coreError(err)
	}

	tok, err := jwt.ParseUnverified(res.AccessToken.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: core returned unparseable access token: %v", ErrCoreUnavailable, err)
	}
	info, err := tok.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: core returned invalid access token: %v", ErrCoreUnavailable, err)
	}

	s := newSession(f.e, res.Session, info.UserData, res.AccessToken)
	s.refreshToken = &res.RefreshToken
	s.antiCSRFToken = res.AntiCSRFToken
	s.accessTokenUpdated = true
	return s, nil
}

func (f baseFunctions) GetSession(ctx context.Context, in TokenVerifyInput) (*Session, error) {
	tok, err := jwt.ParseUnverified(in.AccessToken)
	if err == nil {
		err = jwt.ValidateStructure(tok.Payload, tok.Version)
	}
	if err != nil {
		if !in.SessionRequired {
			return nil, nil
		}
		return nil, tryRefresh("access token has an invalid structure")
	}

	res, err := f.e.core.GetSession(ctx, core.GetSessionInput{
		AccessToken:     in.AccessToken,
		AntiCSRFToken:   in.AntiCSRFToken,
		DoAntiCSRFCheck: in.DoAntiCSRFCheck,
		CheckDatabase:   in.CheckDatabase,
	})
	if err != nil {
		return nil, coreError(err)
	}

	switch res.Status {
	case core.StatusOK:
	case core.StatusTryRefreshToken:
		return nil, tryRefresh(res.Message)
	default:
		return nil, unauthorised(true, res.Message)
	}

	if res.AccessToken != nil {
		fresh, err := jwt.ParseUnverified(res.AccessToken.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: core returned unparseable access token: %v", ErrCoreUnavailable, err)
		}
		info, err := fresh.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: core returned invalid access token: %v", ErrCoreUnavailable, err)
		}
		s := newSession(f.e, res.Session, info.UserData, *res.AccessToken)
		s.accessTokenUpdated = true
		return s, nil
	}

	info, err := tok.Info()
	if err != nil {
		return nil, tryRefresh("access token has an invalid structure")
	}
	s := newSession(f.e, res.Session, info.UserData, core.TokenInfo{Token: in.AccessToken, Expiry: info.Expiry, CreatedAt: info.TimeCreated})
	return s, nil
}

func (f baseFunctions) RefreshSession(ctx context.Context, in TokenRefreshInput) (*Session, error) {
	res, err := f.e.core.RefreshSession(ctx, core.RefreshSessionInput{
		RefreshToken:    in.RefreshToken,
		AntiCSRFToken:   in.AntiCSRFToken,
		DisableAntiCSRF: in.DisableAntiCSRF,
	})
	if err != nil {
		return nil, coreError(err)
	}

	switch res.Status {
	case core.StatusOK:
	case core.StatusTokenTheftDetected:
		return nil, &TokenTheftError{
			SessionHandle: res.Session.Handle,
			UserID:        res.Session.UserID,
			RecipeUserID:  res.Session.RecipeUserID,
		}
	default:
		return nil, unauthorised(true, res.Message)
	}

	tok, err := jwt.ParseUnverified(res.AccessToken.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: core returned unparseable access token: %v", ErrCoreUnavailable, err)
	}
	info, err := tok.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: core returned invalid access token: %v", ErrCoreUnavailable, err)
	}

	s := newSession(f.e, res.Session, info.UserData, res.AccessToken)
	s.refreshToken = &res.RefreshToken
	s.antiCSRFToken = res.AntiCSRFToken
	s.accessTokenUpdated = true
	return s, nil
}

func (f baseFunctions) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*core.RegenerateAccessTokenResult, error) {
	res, err := f.e.core.RegenerateAccessToken(ctx, accessToken, newPayload)
	if err != nil {
		return nil, coreError(err)
	}
	if res == nil || res.Status == core.StatusUnauthorised {
		return nil, nil
	}
	return res, nil
}

func (f baseFunctions) RevokeSession(ctx context.Context, handle string) (bool, error) {
	ok, err := f.e.core.RevokeSession(ctx, handle)
	if err != nil {
		return false, coreError(err)
	}
	return ok, nil
}

func (f baseFunctions) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
	handles, err := f.e.core.RevokeSessionsByUserID(ctx, userID, tenantID, acrossAllTenants)
	if err != nil {
		return nil, coreError(err)
	}
	return handles, nil
}

func (f baseFunctions) GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error) {
	info, err := f.e.core.GetSessionInformation(ctx, handle)
	if err != nil {
		return nil, coreError(err)
	}
	return info, nil
}

func (f baseFunctions) UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error) {
	ok, err := f.e.core.UpdateSessionDataInDatabase(ctx, handle, data)
	if err != nil {
		return false, coreError(err)
	}
	return ok, nil
}

func (f baseFunctions) GetGlobalClaimValidators(_ context.Context, in GlobalValidatorsInput) ([]ClaimValidator, error) {
	return in.Validators, nil
}

// ValidateClaims refetches every stale claim, then runs every validator
// against the resulting payload. Fetch failures are combined and returned.
func (f baseFunctions) ValidateClaims(ctx context.Context, in ValidateClaimsInput) (*ValidateClaimsResult, error) {
	payload := maps.Clone(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	var fetchErr error
	for _, v := range in.Validators {
		claim := v.Claim()
		if claim == nil || !v.ShouldRefetch(payload) {
			continue
		}
		value, err := claim.FetchValue(ctx, in.UserID, in.RecipeUserID, in.TenantID, payload)
		if err != nil {
			fetchErr = multierr.Append(fetchErr, fmt.Errorf("fetch claim %q: %w", claim.Key(), err))
			continue
		}
		if value != nil {
			payload = claim.AddToPayload(payload, value)
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	result := &ValidateClaimsResult{}
	if !reflect.DeepEqual(payload, in.Payload) && !(len(payload) == 0 && len(in.Payload) == 0) {
		result.PayloadUpdate = payload
	}
	for _, v := range in.Validators {
		res := v.Validate(ctx, payload)
		if !res.IsValid {
			result.Failures = append(result.Failures, ClaimValidationError{ID: v.ID(), Reason: res.Reason})
			f.e.logger.Debug("claim validator failed", zap.String("validator", v.ID()), zap.Any("reason", res.Reason))
		}
	}
	return result, nil
}

// coreError tags transport failures so callers can tell them from session outcomes.
func coreError(err error) error {
	return fmt.Errorf("%w: %w", ErrCoreUnavailable, err)
}

var _ Functions = baseFunctions{}
