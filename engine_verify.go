package goSession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"go.uber.org/zap"
)

// GetSession verifies the session carried by req. Refreshed tokens and
// payload updates made by claim refetching are written to resp under the
// method the access token arrived with.
//
// It returns (nil, nil) when no session is present and opts.SessionRequired
// is false. Errors are [TryRefreshTokenError], [UnauthorisedError] or
// [InvalidClaimsError]; tokens are already cleared from resp when the error
// requires it.
func (e *Engine) GetSession(ctx context.Context, req Request, resp Response, opts *VerifyOptions) (s *Session, err error) {
	start := time.Now()
	if opts == nil {
		opts = &VerifyOptions{}
	}
	required := opts.SessionRequired == nil || *opts.SessionRequired

	method := TransferHeader
	defer func() {
		e.finish(ctx, req, resp)
		e.recordVerify(ctx, s, method, err, start)
	}()

	raw, found, err := e.findAccessToken(req, resp)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		if !required {
			return nil, nil
		}
		return nil, unauthorised(false, "access token missing")
	}
	method = found

	doCheck := req.Method() != http.MethodGet
	if opts.AntiCSRFCheck != nil {
		doCheck = *opts.AntiCSRFCheck
	}
	if method == TransferHeader {
		doCheck = false
	}
	if doCheck && e.resolved.antiCSRF == AntiCSRFViaCustomHeader {
		if req.Header(headerRID) == "" {
			if !required {
				return nil, nil
			}
			return nil, tryRefresh("anti-csrf check failed, send the rid header")
		}
		doCheck = false
	}
	if e.resolved.antiCSRF != AntiCSRFViaToken {
		doCheck = false
	}

	s, err = e.functions.GetSession(ctx, TokenVerifyInput{
		AccessToken:     raw,
		AntiCSRFToken:   req.Header(headerAntiCSRF),
		DoAntiCSRFCheck: doCheck,
		CheckDatabase:   opts.CheckDatabase || e.config.Verify.CheckDatabase,
		SessionRequired: required,
	})
	if err != nil {
		if ctx.Err() == nil && ShouldClearTokens(err) {
			e.clearSessionFromAllTransferMethods(resp)
		}
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.AttachToResponse(req, resp, method)

	validators, err := e.requiredValidators(ctx, s, opts.OverrideGlobalClaimValidators)
	if err != nil {
		return nil, err
	}
	if err := s.AssertClaims(ctx, validators); err != nil {
		return nil, err
	}
	return s, nil
}

// findAccessToken picks the access token to verify. Header tokens win over
// cookies. Unparseable tokens count as absent.
func (e *Engine) findAccessToken(req Request, resp Response) (string, TransferMethod, error) {
	allowed := e.tokenTransferMethod(req, false)

	if allows(allowed, TransferHeader) {
		if raw, _ := e.readToken(req, TokenAccess, TransferHeader); raw != "" {
			if _, err := jwt.ParseUnverified(raw); err == nil {
				return raw, TransferHeader, nil
			}
			e.logger.Debug("ignoring unparseable access token", zap.String("transfer_method", string(TransferHeader)))
		}
	}

	if !allows(allowed, TransferCookie) {
		return "", "", nil
	}
	raw, multiple := e.readToken(req, TokenAccess, TransferCookie)
	if multiple {
		e.clearOlderDomainCookies(resp)
		return "", "", tryRefresh("multiple access token cookies in request")
	}
	if raw == "" {
		return "", "", nil
	}
	if _, err := jwt.ParseUnverified(raw); err != nil {
		e.logger.Debug("ignoring unparseable access token", zap.String("transfer_method", string(TransferCookie)))
		return "", "", nil
	}
	return raw, TransferCookie, nil
}

// GetSessionWithoutRequestResponse verifies a raw access token. The
// anti-CSRF check runs unless opts.AntiCSRFCheck is false and the engine
// uses VIA_TOKEN.
func (e *Engine) GetSessionWithoutRequestResponse(ctx context.Context, accessToken, antiCSRFToken string, opts *VerifyOptions) (*Session, error) {
	if opts == nil {
		opts = &VerifyOptions{}
	}
	required := opts.SessionRequired == nil || *opts.SessionRequired
	doCheck := opts.AntiCSRFCheck == nil || *opts.AntiCSRFCheck

	s, err := e.functions.GetSession(ctx, TokenVerifyInput{
		AccessToken:     accessToken,
		AntiCSRFToken:   antiCSRFToken,
		DoAntiCSRFCheck: doCheck && e.resolved.antiCSRF == AntiCSRFViaToken,
		CheckDatabase:   opts.CheckDatabase || e.config.Verify.CheckDatabase,
		SessionRequired: required,
	})
	if err != nil || s == nil {
		return nil, err
	}

	validators, err := e.requiredValidators(ctx, s, opts.OverrideGlobalClaimValidators)
	if err != nil {
		return nil, err
	}
	if err := s.AssertClaims(ctx, validators); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) recordVerify(ctx context.Context, s *Session, method TransferMethod, err error, start time.Time) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		e.metricObserve(MetricVerifyLatency, time.Since(start))
	}

	switch {
	case err == nil && s == nil:
		e.metricInc(MetricVerifyNoSession)
		return
	case err == nil:
		e.metricInc(MetricVerifySuccess)
		e.emitSessionAudit(ctx, auditEventSessionVerified, s, method, nil)
		return
	case errors.Is(err, ErrTryRefreshToken):
		e.metricInc(MetricVerifyTryRefresh)
	case errors.Is(err, ErrUnauthorised):
		e.metricInc(MetricVerifyUnauthorised)
	}
	if !errors.Is(err, ErrInvalidClaims) {
		e.emitSessionAudit(ctx, auditEventSessionVerifyFailed, nil, method, err)
	}
	e.logger.Debug("session verification failed", zap.String("transfer_method", string(method)), zap.Error(err))
}
