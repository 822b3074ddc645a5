package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/claims"
	"github.com/MrEthical07/goSession/jwt"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"go.uber.org/zap"
)

// Engine runs the session lifecycle on top of a [CoreClient]. It is safe for
// concurrent use once built by [Builder.Build].
type Engine struct {
	config    Config
	resolved  resolvedConfig
	core      CoreClient
	functions Functions
	claims    *claims.Registry
	logger    *zap.Logger
	audit     *internalaudit.Dispatcher
	metrics   *internalmetrics.Metrics
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped reports how many audit events were lost to a full buffer or
// a done context.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns the current in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Functions returns the intercepted function chain, for callers that need
// to invoke an operation exactly as the engine does.
func (e *Engine) Functions() Functions {
	return e.functions
}

// Claims returns the claim registry.
func (e *Engine) Claims() *claims.Registry {
	return e.claims
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// ClearSession removes session tokens from resp under every transfer method.
func (e *Engine) ClearSession(resp Response) {
	e.clearSessionFromAllTransferMethods(resp)
}

// requiredValidators resolves the validators applied to s during verification.
func (e *Engine) requiredValidators(ctx context.Context, s *Session, override func([]ClaimValidator, *Session) ([]ClaimValidator, error)) ([]ClaimValidator, error) {
	globals, err := e.functions.GetGlobalClaimValidators(ctx, GlobalValidatorsInput{
		UserID:       s.userID,
		RecipeUserID: s.recipeUserID,
		TenantID:     s.tenantID,
		Validators:   e.claims.GlobalValidators(),
	})
	if err != nil {
		return nil, err
	}
	if override != nil {
		return override(globals, s)
	}
	return globals, nil
}

// ValidateClaimsInJWTPayload runs validators against payload without fetching
// any claim, so stale or missing values fail instead of being refreshed. A
// nil validators list uses the global validators for the user.
func (e *Engine) ValidateClaimsInJWTPayload(ctx context.Context, tenantID, userID string, payload map[string]any, validators []ClaimValidator) ([]ClaimValidationError, error) {
	if validators == nil {
		if tenantID == "" {
			tenantID = jwt.DefaultTenantID
		}
		globals, err := e.functions.GetGlobalClaimValidators(ctx, GlobalValidatorsInput{
			UserID:       userID,
			RecipeUserID: userID,
			TenantID:     tenantID,
			Validators:   e.claims.GlobalValidators(),
		})
		if err != nil {
			return nil, err
		}
		validators = globals
	}
	if payload == nil {
		payload = map[string]any{}
	}

	var failures []ClaimValidationError
	for _, v := range validators {
		if res := v.Validate(ctx, payload); !res.IsValid {
			failures = append(failures, ClaimValidationError{ID: v.ID(), Reason: res.Reason})
		}
	}
	return failures, nil
}

// finish runs the cleanup shared by every request-level flow.
func (e *Engine) finish(ctx context.Context, req Request, resp Response) {
	if ctx.Err() != nil {
		return
	}
	if e.clearLegacyCookie(req, resp) {
		e.metricInc(MetricLegacyCookieCleared)
		e.emitAudit(ctx, auditEventLegacyCookieCleared, true, "", "", "", nil, nil)
	}
}
