package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/claims"
	"github.com/MrEthical07/goSession/jwt"
	"go.uber.org/zap"
)

// ErrMissingUserID is returned when a session is requested without a user.
var ErrMissingUserID = errors.New("user id is required")

// CreateNewSession creates a session for in.UserID and writes its tokens to
// resp. Tokens go in headers unless the client asked for cookies with the
// st-auth-mode header. Access tokens found under the other method are cleared.
func (e *Engine) CreateNewSession(ctx context.Context, req Request, resp Response, in CreateSessionInput) (s *Session, err error) {
	method := e.tokenTransferMethod(req, true)
	if method == TransferAny {
		method = TransferHeader
	}
	defer func() {
		e.finish(ctx, req, resp)
		e.recordCreate(ctx, s, method, err)
	}()

	// Checked before prepareCreate so claim fetchers never run for a
	// session that cannot be written.
	if method == TransferCookie && e.resolved.sameSite == http.SameSiteNoneMode && !e.resolved.secure && !e.resolved.localOrIP() {
		return nil, fmt.Errorf("%w: cross-site cookies need https on the API domain and Cookie.Secure left enabled", ErrInsecureConfiguration)
	}

	in, err = e.prepareCreate(ctx, in)
	if err != nil {
		return nil, err
	}

	s, err = e.functions.CreateNewSession(ctx, in, method == TransferHeader)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, m := range availableTransferMethods {
		if m == method {
			continue
		}
		if raw, _ := e.readToken(req, TokenAccess, m); raw != "" {
			e.clearSession(resp, m)
			e.metricInc(MetricStrayTokensCleared)
		}
	}
	s.AttachToResponse(req, resp, method)
	return s, nil
}

// CreateNewSessionWithoutRequestResponse creates a session and returns it
// without writing tokens anywhere.
func (e *Engine) CreateNewSessionWithoutRequestResponse(ctx context.Context, in CreateSessionInput, disableAntiCSRF bool) (s *Session, err error) {
	defer func() { e.recordCreate(ctx, s, "", err) }()

	in, err = e.prepareCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	return e.functions.CreateNewSession(ctx, in, disableAntiCSRF || e.resolved.antiCSRF != AntiCSRFViaToken)
}

// prepareCreate fills defaults, strips protected keys from the payload and
// applies every registered claim.
func (e *Engine) prepareCreate(ctx context.Context, in CreateSessionInput) (CreateSessionInput, error) {
	if in.UserID == "" {
		return in, ErrMissingUserID
	}
	if in.TenantID == "" {
		in.TenantID = jwt.DefaultTenantID
	}
	if in.RecipeUserID == "" {
		in.RecipeUserID = in.UserID
	}

	payload := make(map[string]any, len(in.AccessTokenPayload)+1)
	for k, v := range in.AccessTokenPayload {
		if jwt.IsProtectedClaim(k) {
			e.logger.Debug("dropping protected key from access token payload", zap.String("key", k))
			continue
		}
		payload[k] = v
	}
	payload["iss"] = e.resolved.issuer

	for _, claim := range e.claims.All() {
		next, err := claims.Build(ctx, claim, in.UserID, in.RecipeUserID, in.TenantID, payload)
		if err != nil {
			return in, fmt.Errorf("build claim %q: %w", claim.Key(), err)
		}
		payload = next
	}
	in.AccessTokenPayload = payload

	if in.SessionDataInDatabase == nil {
		in.SessionDataInDatabase = map[string]any{}
	}
	return in, nil
}

func (e *Engine) recordCreate(ctx context.Context, s *Session, method TransferMethod, err error) {
	if err != nil {
		e.metricInc(MetricSessionCreateFailure)
		e.emitSessionAudit(ctx, auditEventSessionCreateFailed, nil, method, err)
		e.logger.Warn("session creation failed", zap.Error(err))
		return
	}
	e.metricInc(MetricSessionCreated)
	e.emitSessionAudit(ctx, auditEventSessionCreated, s, method, nil)
	e.logger.Debug("session created", zap.String("session_handle", s.handle), zap.String("transfer_method", string(method)))
}
