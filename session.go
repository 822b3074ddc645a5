package goSession

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/claims"
	"github.com/MrEthical07/goSession/core"
	"github.com/MrEthical07/goSession/jwt"
	"go.uber.org/zap"
)

// Session is a verified session. Methods are safe for concurrent use; updates
// made while the session is bound to a response are written to it.
type Session struct {
	engine *Engine

	handle       string
	userID       string
	recipeUserID string
	tenantID     string

	mu                 sync.Mutex
	payload            map[string]any
	accessToken        string
	accessExpiry       time.Time
	frontToken         string
	refreshToken       *core.TokenInfo
	antiCSRFToken      string
	accessTokenUpdated bool
	bound              *binding
}

type binding struct {
	req    Request
	resp   Response
	method TransferMethod
}

func newSession(e *Engine, cs core.Session, payload map[string]any, access core.TokenInfo) *Session {
	if payload == nil {
		payload = map[string]any{}
	}
	tenantID := cs.TenantID
	if tenantID == "" {
		tenantID = jwt.DefaultTenantID
	}
	recipeUserID := cs.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = cs.UserID
	}
	return &Session{
		engine:       e,
		handle:       cs.Handle,
		userID:       cs.UserID,
		recipeUserID: recipeUserID,
		tenantID:     tenantID,
		payload:      payload,
		accessToken:  access.Token,
		accessExpiry: access.Expiry,
		frontToken:   buildFrontToken(cs.UserID, access.Expiry, payload),
	}
}

func (s *Session) Handle() string       { return s.handle }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) RecipeUserID() string { return s.recipeUserID }
func (s *Session) TenantID() string     { return s.tenantID }

// AccessTokenPayload returns a copy of the current access token payload.
func (s *Session) AccessTokenPayload() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.payload)
}

// AccessToken returns the current raw access token.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// AllSessionTokens returns the tokens last issued for this session. The
// refresh and anti-CSRF tokens are only known right after create or refresh.
func (s *Session) AllSessionTokens() SessionTokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := SessionTokens{
		AccessToken:                s.accessToken,
		AntiCSRFToken:              s.antiCSRFToken,
		FrontToken:                 s.frontToken,
		AccessAndFrontTokenUpdated: s.accessTokenUpdated,
	}
	if s.refreshToken != nil {
		out.RefreshToken = s.refreshToken.Token
	}
	return out
}

/*
====================================
DATABASE SESSION DATA
====================================
*/

// GetSessionDataFromDatabase reads the server-side data of this session.
func (s *Session) GetSessionDataFromDatabase(ctx context.Context) (map[string]any, error) {
	info, err := s.information(ctx)
	if err != nil {
		return nil, err
	}
	return info.SessionDataInDatabase, nil
}

// UpdateSessionDataInDatabase replaces the server-side data of this session.
func (s *Session) UpdateSessionDataInDatabase(ctx context.Context, data map[string]any) error {
	ok, err := s.engine.functions.UpdateSessionDataInDatabase(ctx, s.handle, data)
	if err != nil {
		return err
	}
	if !ok {
		s.mu.Lock()
		s.clearBoundLocked()
		s.mu.Unlock()
		return unauthorised(true, "session does not exist anymore")
	}
	return nil
}

// TimeCreated is when the session was created.
func (s *Session) TimeCreated(ctx context.Context) (time.Time, error) {
	info, err := s.information(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return info.TimeCreated, nil
}

// Expiry is when the session's refresh token lapses.
func (s *Session) Expiry(ctx context.Context) (time.Time, error) {
	info, err := s.information(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return info.Expiry, nil
}

func (s *Session) information(ctx context.Context) (*SessionInformation, error) {
	info, err := s.engine.functions.GetSessionInformation(ctx, s.handle)
	if err != nil {
		return nil, err
	}
	if info == nil {
		s.mu.Lock()
		s.clearBoundLocked()
		s.mu.Unlock()
		return nil, unauthorised(true, "session does not exist anymore")
	}
	return info, nil
}

// clearBoundLocked removes the session's tokens from the bound response.
func (s *Session) clearBoundLocked() {
	if s.bound != nil {
		s.engine.clearSession(s.bound.resp, s.bound.method)
	}
}

// Revoke ends the session and, when bound to a response, clears its tokens.
func (s *Session) Revoke(ctx context.Context) error {
	if _, err := s.engine.functions.RevokeSession(ctx, s.handle); err != nil {
		return err
	}
	s.engine.metricInc(MetricSessionRevoked)
	s.engine.emitAudit(ctx, auditEventSessionRevoked, true, s.userID, s.tenantID, s.handle, nil, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearBoundLocked()
	return nil
}

/*
====================================
ACCESS TOKEN PAYLOAD
====================================
*/

// MergeIntoAccessTokenPayload applies update to the payload and reissues the
// access token. A nil value removes its key. Protected keys are rejected.
func (s *Session) MergeIntoAccessTokenPayload(ctx context.Context, update map[string]any) error {
	for key := range update {
		if jwt.IsProtectedClaim(key) {
			return fmt.Errorf("%w: %s", ErrProtectedClaim, key)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(ctx, update)
}

func (s *Session) mergeLocked(ctx context.Context, update map[string]any) error {
	next := make(map[string]any, len(s.payload)+len(update))
	for k, v := range s.payload {
		if !jwt.IsProtectedClaim(k) {
			next[k] = v
		}
	}
	for k, v := range update {
		if jwt.IsProtectedClaim(k) {
			continue
		}
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	return s.regenerateLocked(ctx, next)
}

func (s *Session) regenerateLocked(ctx context.Context, next map[string]any) error {
	res, err := s.engine.functions.RegenerateAccessToken(ctx, s.accessToken, next)
	if err != nil {
		return err
	}
	if res == nil {
		s.clearBoundLocked()
		return unauthorised(true, "session does not exist anymore")
	}

	if res.AccessToken == nil {
		merged := maps.Clone(s.payload)
		for k, v := range res.Session.UserDataInJWT {
			merged[k] = v
		}
		s.payload = merged
		return nil
	}

	tok, err := jwt.ParseUnverified(res.AccessToken.Token)
	if err != nil {
		return fmt.Errorf("%w: core returned unparseable access token: %v", ErrCoreUnavailable, err)
	}
	info, err := tok.Info()
	if err != nil {
		return fmt.Errorf("%w: core returned invalid access token: %v", ErrCoreUnavailable, err)
	}
	s.payload = info.UserData
	s.accessToken = res.AccessToken.Token
	s.accessExpiry = res.AccessToken.Expiry
	s.frontToken = buildFrontToken(s.userID, s.accessExpiry, s.payload)
	s.accessTokenUpdated = true
	if s.bound != nil {
		s.writeAccessTokenLocked(s.bound.resp, s.bound.method)
	}
	return nil
}

/*
====================================
CLAIMS
====================================
*/

// GetClaimValue reads claim from the current payload.
func (s *Session) GetClaimValue(claim claims.Claim) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claim.GetValueFromPayload(s.payload)
}

// SetClaimValue stores value for claim and reissues the access token.
func (s *Session) SetClaimValue(ctx context.Context, claim claims.Claim, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	update := claim.AddToPayload(map[string]any{}, value)
	return s.mergeLocked(ctx, update)
}

// FetchAndSetClaim fetches the current value of claim and stores it.
func (s *Session) FetchAndSetClaim(ctx context.Context, claim claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	update, err := claims.Build(ctx, claim, s.userID, s.recipeUserID, s.tenantID, map[string]any{})
	if err != nil {
		return err
	}
	return s.mergeLocked(ctx, update)
}

// RemoveClaim deletes claim from the payload.
func (s *Session) RemoveClaim(ctx context.Context, claim claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(ctx, claim.RemoveFromPayloadByMerge(map[string]any{}))
}

// AssertClaims refetches stale claims, stores any change and fails with an
// [InvalidClaimsError] listing every failing validator.
func (s *Session) AssertClaims(ctx context.Context, validators []ClaimValidator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.engine.functions.ValidateClaims(ctx, ValidateClaimsInput{
		UserID:       s.userID,
		RecipeUserID: s.recipeUserID,
		TenantID:     s.tenantID,
		Payload:      maps.Clone(s.payload),
		Validators:   validators,
	})
	if err != nil {
		return err
	}

	if res.PayloadUpdate != nil {
		update := make(map[string]any, len(res.PayloadUpdate))
		for k, v := range res.PayloadUpdate {
			if !jwt.IsProtectedClaim(k) {
				update[k] = v
			}
		}
		for k := range s.payload {
			if _, ok := res.PayloadUpdate[k]; !ok && !jwt.IsProtectedClaim(k) {
				update[k] = nil
			}
		}
		if err := s.mergeLocked(ctx, update); err != nil {
			return err
		}
	}

	return s.reportInvalidClaims(ctx, res.Failures)
}

// ValidateClaimsInJWTPayload checks validators against the current payload
// without refetching. A claim that was removed fails even when its source
// would now return a passing value.
func (s *Session) ValidateClaimsInJWTPayload(ctx context.Context, validators []ClaimValidator) error {
	s.mu.Lock()
	payload := maps.Clone(s.payload)
	s.mu.Unlock()

	failures, err := s.engine.ValidateClaimsInJWTPayload(ctx, s.tenantID, s.userID, payload, validators)
	if err != nil {
		return err
	}
	return s.reportInvalidClaims(ctx, failures)
}

func (s *Session) reportInvalidClaims(ctx context.Context, failures []ClaimValidationError) error {
	if len(failures) == 0 {
		return nil
	}
	s.engine.metricInc(MetricInvalidClaims)
	s.engine.emitAudit(ctx, auditEventClaimsInvalid, false, s.userID, s.tenantID, s.handle, ErrInvalidClaims, func() map[string]string {
		ids := make(map[string]string, len(failures))
		for i, f := range failures {
			ids[fmt.Sprintf("validator_%d", i)] = f.ID
		}
		return ids
	})
	return &InvalidClaimsError{Failures: failures}
}

/*
====================================
RESPONSE BINDING
====================================
*/

// AttachToResponse binds the session to a response and writes any tokens
// issued so far under method. Later payload updates are written too.
func (s *Session) AttachToResponse(req Request, resp Response, method TransferMethod) {
	if method == TransferAny || method == "" {
		method = TransferHeader
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = &binding{req: req, resp: resp, method: method}
	if !s.accessTokenUpdated {
		return
	}

	tokens := responseTokens{
		userID:        s.userID,
		payload:       s.payload,
		accessToken:   s.accessToken,
		accessExpiry:  s.accessExpiry,
		antiCSRFToken: s.antiCSRFToken,
	}
	if s.refreshToken != nil {
		tokens.refreshToken = s.refreshToken.Token
		tokens.refreshExpiry = s.refreshToken.Expiry
	}
	s.engine.attachTokens(resp, method, tokens)
}

func (s *Session) writeAccessTokenLocked(resp Response, method TransferMethod) {
	s.engine.attachTokens(resp, method, responseTokens{
		userID:       s.userID,
		payload:      s.payload,
		accessToken:  s.accessToken,
		accessExpiry: s.accessExpiry,
	})
	s.engine.logger.Debug("access token reissued", zap.String("session_handle", s.handle))
}
