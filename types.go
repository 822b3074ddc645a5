package goSession

import (
	"io"

	"github.com/MrEthical07/goSession/claims"
	"github.com/MrEthical07/goSession/core"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
)

// TransferMethod says where tokens travel.
type TransferMethod string

const (
	TransferCookie TransferMethod = "cookie"
	TransferHeader TransferMethod = "header"
	// TransferAny accepts either on input. Output resolves it to header.
	TransferAny TransferMethod = "any"
)

// availableTransferMethods is the scan order for incoming tokens.
var availableTransferMethods = []TransferMethod{TransferCookie, TransferHeader}

// AntiCSRFMode selects the cross-site request forgery defence for cookie transport.
type AntiCSRFMode string

const (
	AntiCSRFViaToken        AntiCSRFMode = "VIA_TOKEN"
	AntiCSRFViaCustomHeader AntiCSRFMode = "VIA_CUSTOM_HEADER"
	AntiCSRFNone            AntiCSRFMode = "NONE"
)

// TokenType distinguishes access and refresh tokens on the wire.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// CoreClient is the authentication core the engine delegates to.
type CoreClient = core.Client

// SessionInformation is the server-side view of a session.
type SessionInformation = core.SessionInformation

// Claim is a session claim.
type Claim = claims.Claim

// ClaimValidator checks a claim on verified sessions.
type ClaimValidator = claims.Validator

// CreateSessionInput describes the session to create.
type CreateSessionInput struct {
	TenantID              string
	UserID                string
	RecipeUserID          string
	AccessTokenPayload    map[string]any
	SessionDataInDatabase map[string]any
}

// VerifyOptions tunes [Engine.GetSession].
type VerifyOptions struct {
	// SessionRequired defaults to true. When false, a missing session yields (nil, nil).
	SessionRequired *bool
	// AntiCSRFCheck defaults to true for every method except GET.
	AntiCSRFCheck *bool
	CheckDatabase bool
	// OverrideGlobalClaimValidators replaces the validator list for this call.
	OverrideGlobalClaimValidators func(globals []ClaimValidator, s *Session) ([]ClaimValidator, error)
}

// Bool returns a pointer to b, for option fields.
func Bool(b bool) *bool { return &b }

// SessionTokens is every token of a session as last seen by the engine.
type SessionTokens struct {
	AccessToken                string
	RefreshToken               string
	AntiCSRFToken              string
	FrontToken                 string
	AccessAndFrontTokenUpdated bool
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in the in-process metrics.
type MetricID = internalmetrics.MetricID

const (
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionCreateFailure = internalmetrics.MetricSessionCreateFailure
	MetricVerifySuccess        = internalmetrics.MetricVerifySuccess
	MetricVerifyNoSession      = internalmetrics.MetricVerifyNoSession
	MetricVerifyTryRefresh     = internalmetrics.MetricVerifyTryRefresh
	MetricVerifyUnauthorised   = internalmetrics.MetricVerifyUnauthorised
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshUnauthorised  = internalmetrics.MetricRefreshUnauthorised
	MetricTokenTheftDetected   = internalmetrics.MetricTokenTheftDetected
	MetricInvalidClaims        = internalmetrics.MetricInvalidClaims
	MetricSessionRevoked       = internalmetrics.MetricSessionRevoked
	MetricLegacyCookieCleared  = internalmetrics.MetricLegacyCookieCleared
	MetricStrayTokensCleared   = internalmetrics.MetricStrayTokensCleared
	MetricVerifyLatency        = internalmetrics.MetricVerifyLatency
)

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot
