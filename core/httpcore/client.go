package httpcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/core"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ScopeName is the instrumentation scope of the client's spans.
const ScopeName = "github.com/MrEthical07/goSession/core/httpcore"

const (
	pathSession           = "/recipe/session"
	pathSessionVerify     = "/recipe/session/verify"
	pathSessionRefresh    = "/recipe/session/refresh"
	pathSessionRegenerate = "/recipe/session/regenerate"
	pathSessionRemove     = "/recipe/session/remove"
	pathSessionUserRemove = "/recipe/session/user/remove"
	pathSessionInfo       = "/recipe/session/info"
	pathSessionData       = "/recipe/session/data"

	headerAPIKey = "api-key"
)

var (
	// ErrUnexpectedStatus is returned for responses outside 2xx.
	ErrUnexpectedStatus = errors.New("unexpected core response status")
	// ErrUnknownCoreStatus is returned when the body's status field is not one the operation allows.
	ErrUnknownCoreStatus = errors.New("unknown core status")
)

// StatusError carries a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// Config points the client at a core.
type Config struct {
	BaseURL string `validate:"required,url"`
	// APIKey is sent in the api-key header when set.
	APIKey  string
	Timeout time.Duration `validate:"gte=0"`
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Config.Timeout is ignored.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTracerProvider sets where spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(ScopeName) }
}

// WithPropagator sets the trace-context propagator. Defaults to the global one.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) { c.propagator = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is a core.Client over HTTP. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	apiKey     string
	http       *http.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

var _ core.Client = (*Client)(nil)

func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("httpcore config: %w", err)
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpcore config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		base:       base,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		tracer:     otel.GetTracerProvider().Tracer(ScopeName),
		propagator: otel.GetTextMapPropagator(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

/*
====================================
OPERATIONS
====================================
*/

type createSessionResponse struct {
	Status core.Status `json:"status"`
	core.CreateSessionResult
}

func (c *Client) CreateSession(ctx context.Context, in core.CreateSessionInput) (*core.CreateSessionResult, error) {
	var out createSessionResponse
	if err := c.do(ctx, "create", http.MethodPost, pathSession, nil, in, &out); err != nil {
		return nil, err
	}
	if out.Status != core.StatusOK {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCoreStatus, out.Status)
	}
	return &out.CreateSessionResult, nil
}

func (c *Client) GetSession(ctx context.Context, in core.GetSessionInput) (*core.GetSessionResult, error) {
	var out core.GetSessionResult
	if err := c.do(ctx, "verify", http.MethodPost, pathSessionVerify, nil, in, &out); err != nil {
		return nil, err
	}
	if err := expectStatus(out.Status, core.StatusOK, core.StatusUnauthorised, core.StatusTryRefreshToken); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshSession(ctx context.Context, in core.RefreshSessionInput) (*core.RefreshSessionResult, error) {
	var out core.RefreshSessionResult
	if err := c.do(ctx, "refresh", http.MethodPost, pathSessionRefresh, nil, in, &out); err != nil {
		return nil, err
	}
	if err := expectStatus(out.Status, core.StatusOK, core.StatusUnauthorised, core.StatusTokenTheftDetected); err != nil {
		return nil, err
	}
	return &out, nil
}

type regenerateRequest struct {
	AccessToken   string         `json:"accessToken"`
	UserDataInJWT map[string]any `json:"userDataInJWT"`
}

func (c *Client) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*core.RegenerateAccessTokenResult, error) {
	var out core.RegenerateAccessTokenResult
	body := regenerateRequest{AccessToken: accessToken, UserDataInJWT: newPayload}
	if err := c.do(ctx, "regenerate", http.MethodPost, pathSessionRegenerate, nil, body, &out); err != nil {
		return nil, err
	}
	if err := expectStatus(out.Status, core.StatusOK, core.StatusUnauthorised); err != nil {
		return nil, err
	}
	return &out, nil
}

type removeRequest struct {
	SessionHandles []string `json:"sessionHandles"`
}

type userRemoveRequest struct {
	UserID                 string `json:"userId"`
	TenantID               string `json:"tenantId,omitempty"`
	RevokeAcrossAllTenants bool   `json:"revokeAcrossAllTenants"`
}

type removeResponse struct {
	Status                core.Status `json:"status"`
	SessionHandlesRevoked []string    `json:"sessionHandlesRevoked"`
}

func (c *Client) RevokeSession(ctx context.Context, handle string) (bool, error) {
	var out removeResponse
	if err := c.do(ctx, "remove", http.MethodPost, pathSessionRemove, nil, removeRequest{SessionHandles: []string{handle}}, &out); err != nil {
		return false, err
	}
	if err := expectStatus(out.Status, core.StatusOK); err != nil {
		return false, err
	}
	return len(out.SessionHandlesRevoked) > 0, nil
}

func (c *Client) RevokeSessionsByUserID(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
	var out removeResponse
	body := userRemoveRequest{UserID: userID, TenantID: tenantID, RevokeAcrossAllTenants: acrossAllTenants}
	if err := c.do(ctx, "user_remove", http.MethodPost, pathSessionUserRemove, nil, body, &out); err != nil {
		return nil, err
	}
	if err := expectStatus(out.Status, core.StatusOK); err != nil {
		return nil, err
	}
	return out.SessionHandlesRevoked, nil
}

type infoResponse struct {
	Status core.Status `json:"status"`
	core.SessionInformation
}

func (c *Client) GetSessionInformation(ctx context.Context, handle string) (*core.SessionInformation, error) {
	var out infoResponse
	query := url.Values{"sessionHandle": {handle}}
	if err := c.do(ctx, "info", http.MethodGet, pathSessionInfo, query, nil, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case core.StatusOK:
		return &out.SessionInformation, nil
	case core.StatusUnauthorised:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCoreStatus, out.Status)
}

type dataRequest struct {
	SessionHandle      string         `json:"sessionHandle"`
	UserDataInDatabase map[string]any `json:"userDataInDatabase"`
}

type statusResponse struct {
	Status core.Status `json:"status"`
}

func (c *Client) UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error) {
	var out statusResponse
	if err := c.do(ctx, "update_data", http.MethodPut, pathSessionData, nil, dataRequest{SessionHandle: handle, UserDataInDatabase: data}, &out); err != nil {
		return false, err
	}
	if err := expectStatus(out.Status, core.StatusOK, core.StatusUnauthorised); err != nil {
		return false, err
	}
	return out.Status == core.StatusOK, nil
}

func expectStatus(got core.Status, allowed ...core.Status) error {
	for _, s := range allowed {
		if got == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCoreStatus, got)
}

/*
====================================
TRANSPORT
====================================
*/

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "session.core "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("core %s: %w", operation, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("core returned an error response",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
		)
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
