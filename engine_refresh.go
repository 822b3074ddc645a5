package goSession

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RefreshSession rotates the session whose refresh token req carries and
// writes the new tokens to resp. Tokens found under the other transfer
// method are cleared.
func (e *Engine) RefreshSession(ctx context.Context, req Request, resp Response) (s *Session, err error) {
	var method TransferMethod
	defer func() {
		e.finish(ctx, req, resp)
		e.recordRefresh(ctx, s, method, err)
	}()

	allowed := e.tokenTransferMethod(req, false)
	// Every method is scanned so stray tokens under a disallowed method are
	// still cleared. Only allowed methods can win.
	found := make(map[TransferMethod]string, len(availableTransferMethods))
	multipleCookies := false
	for _, m := range availableTransferMethods {
		raw, multiple := e.readToken(req, TokenRefresh, m)
		if multiple && allows(allowed, m) {
			multipleCookies = true
		}
		if raw != "" {
			found[m] = raw
		}
	}

	var raw string
	switch {
	case allows(allowed, TransferHeader) && found[TransferHeader] != "":
		method, raw = TransferHeader, found[TransferHeader]
	case multipleCookies:
		if e.clearOlderDomainCookies(resp) {
			return nil, tryRefresh("multiple refresh token cookies, cleared the older cookie domain")
		}
		return nil, unauthorised(false, "multiple refresh token cookies, set Cookie.OlderDomain to clear stale ones")
	case allows(allowed, TransferCookie) && found[TransferCookie] != "":
		method, raw = TransferCookie, found[TransferCookie]
	default:
		e.clearStrayRefreshTokens(resp, found, "")
		if allows(allowed, TransferCookie) && len(req.Cookies(e.config.Cookie.AccessTokenName)) > 0 {
			e.clearSession(resp, TransferCookie)
			return nil, unauthorised(true, "refresh token missing while an access token cookie is present")
		}
		return nil, unauthorised(false, "refresh token missing")
	}

	disableAntiCSRF := method == TransferHeader || e.resolved.antiCSRF == AntiCSRFNone
	if !disableAntiCSRF && e.resolved.antiCSRF == AntiCSRFViaCustomHeader {
		if req.Header(headerRID) == "" {
			e.clearSessionFromAllTransferMethods(resp)
			return nil, unauthorised(true, "anti-csrf check failed, send the rid header")
		}
		disableAntiCSRF = true
	}

	s, err = e.functions.RefreshSession(ctx, TokenRefreshInput{
		RefreshToken:    raw,
		AntiCSRFToken:   req.Header(headerAntiCSRF),
		DisableAntiCSRF: disableAntiCSRF,
	})
	if err != nil {
		if ctx.Err() == nil && ShouldClearTokens(err) {
			e.clearSessionFromAllTransferMethods(resp)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.clearStrayRefreshTokens(resp, found, method)
	s.AttachToResponse(req, resp, method)
	return s, nil
}

// clearStrayRefreshTokens clears the tokens of every method other than
// winner that carried a refresh token.
func (e *Engine) clearStrayRefreshTokens(resp Response, found map[TransferMethod]string, winner TransferMethod) {
	for _, m := range availableTransferMethods {
		if m != winner && found[m] != "" {
			e.clearSession(resp, m)
			e.metricInc(MetricStrayTokensCleared)
		}
	}
}

// RefreshSessionWithoutRequestResponse rotates a raw refresh token.
func (e *Engine) RefreshSessionWithoutRequestResponse(ctx context.Context, refreshToken string, disableAntiCSRF bool, antiCSRFToken string) (*Session, error) {
	s, err := e.functions.RefreshSession(ctx, TokenRefreshInput{
		RefreshToken:    refreshToken,
		AntiCSRFToken:   antiCSRFToken,
		DisableAntiCSRF: disableAntiCSRF || e.resolved.antiCSRF != AntiCSRFViaToken,
	})
	e.recordRefresh(ctx, s, "", err)
	return s, err
}

func (e *Engine) recordRefresh(ctx context.Context, s *Session, method TransferMethod, err error) {
	switch {
	case err == nil:
		e.metricInc(MetricRefreshSuccess)
		e.emitSessionAudit(ctx, auditEventSessionRefreshed, s, method, nil)
	case errors.Is(err, ErrTokenTheftDetected):
		e.metricInc(MetricTokenTheftDetected)
		e.emitSessionAudit(ctx, auditEventTokenTheftDetected, nil, method, err)
		e.logger.Warn("refresh token reuse detected", zap.Error(err))
	default:
		if errors.Is(err, ErrUnauthorised) {
			e.metricInc(MetricRefreshUnauthorised)
		}
		e.emitSessionAudit(ctx, auditEventSessionRefreshFailed, nil, method, err)
		e.logger.Debug("session refresh failed", zap.String("transfer_method", string(method)), zap.Error(err))
	}
}
