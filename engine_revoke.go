package goSession

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// RevokeSession revokes one session. It reports whether the session existed.
func (e *Engine) RevokeSession(ctx context.Context, handle string) (bool, error) {
	ok, err := e.functions.RevokeSession(ctx, handle)
	if err != nil {
		return false, err
	}
	if ok {
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, "", "", handle, nil, nil)
	}
	return ok, nil
}

// RevokeAllSessionsForUser revokes a user's sessions in tenantID, or in
// every tenant when acrossAllTenants is set. It returns the revoked handles.
func (e *Engine) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
	handles, err := e.functions.RevokeAllSessionsForUser(ctx, userID, tenantID, acrossAllTenants)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventSessionsRevokedUser, true, userID, tenantID, "", nil, func() map[string]string {
		return map[string]string{
			"count":              strconv.Itoa(len(handles)),
			"across_all_tenants": strconv.FormatBool(acrossAllTenants),
		}
	})
	e.logger.Info("revoked sessions for user", zap.String("user_id", userID), zap.Int("count", len(handles)))
	return handles, nil
}

// GetSessionInformation returns nil, nil when the session does not exist.
func (e *Engine) GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error) {
	return e.functions.GetSessionInformation(ctx, handle)
}

// UpdateSessionDataInDatabase replaces the server-side data of a session.
func (e *Engine) UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error) {
	return e.functions.UpdateSessionDataInDatabase(ctx, handle, data)
}

// SignOut revokes the session carried by req, if any, and clears its tokens.
func (e *Engine) SignOut(ctx context.Context, req Request, resp Response) error {
	s, err := e.GetSession(ctx, req, resp, &VerifyOptions{
		SessionRequired: Bool(false),
		OverrideGlobalClaimValidators: func([]ClaimValidator, *Session) ([]ClaimValidator, error) {
			return nil, nil
		},
	})
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	return s.Revoke(ctx)
}
