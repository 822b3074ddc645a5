package rediscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/MrEthical07/goSession/core"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRateLimited is returned when a refresh or create budget is exhausted.
var ErrRateLimited = rate.ErrRateLimited

// Config tunes token lifetimes and limits.
type Config struct {
	Prefix               string
	AccessTokenValidity  time.Duration
	RefreshTokenValidity time.Duration
	// AntiCSRF embeds an anti-CSRF token in access tokens and checks it when
	// the caller asks for it.
	AntiCSRF bool

	MaxRefreshAttempts int
	RefreshWindow      time.Duration
	MaxCreatesPerUser  int
	CreateWindow       time.Duration
}

// DefaultConfig mirrors common session lifetimes: one hour access tokens and
// one hundred day refresh tokens.
func DefaultConfig() Config {
	return Config{
		Prefix:               "st",
		AccessTokenValidity:  time.Hour,
		RefreshTokenValidity: 100 * 24 * time.Hour,
	}
}

// Option customises a [Core].
type Option func(*Core)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// Core implements [core.Client] on Redis.
type Core struct {
	store   *session.Store
	tokens  *jwt.Manager
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

var _ core.Client = (*Core)(nil)

// New returns a Core storing sessions through rdb and signing with tokens.
func New(rdb redis.UniversalClient, tokens *jwt.Manager, cfg Config, opts ...Option) (*Core, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if tokens == nil {
		return nil, errors.New("token manager required")
	}
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.AccessTokenValidity <= 0 {
		cfg.AccessTokenValidity = def.AccessTokenValidity
	}
	if cfg.RefreshTokenValidity <= 0 {
		cfg.RefreshTokenValidity = def.RefreshTokenValidity
	}
	if cfg.RefreshTokenValidity <= cfg.AccessTokenValidity {
		return nil, errors.New("refresh token validity must exceed access token validity")
	}

	c := &Core{
		store:  session.NewStore(rdb, cfg.Prefix),
		tokens: tokens,
		limiter: rate.New(rdb, rate.Config{
			Prefix:             cfg.Prefix,
			MaxRefreshAttempts: cfg.MaxRefreshAttempts,
			RefreshWindow:      cfg.RefreshWindow,
			MaxCreatesPerUser:  cfg.MaxCreatesPerUser,
			CreateWindow:       cfg.CreateWindow,
		}),
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping checks the Redis connection and returns its round trip time.
func (c *Core) Ping(ctx context.Context) (time.Duration, error) {
	return c.store.Ping(ctx)
}

func (c *Core) CreateSession(ctx context.Context, in core.CreateSessionInput) (*core.CreateSessionResult, error) {
	tenantID := defaultTenant(in.TenantID)
	recipeUserID := in.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = in.UserID
	}
	if err := c.limiter.CheckCreate(ctx, tenantID, in.UserID); err != nil {
		return nil, err
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	handle := sid.String()
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	hash := internal.HashRefreshSecret(secret)

	now := c.now()
	refreshExpiry := now.Add(c.cfg.RefreshTokenValidity).Truncate(time.Second)
	antiCSRF := ""
	if c.cfg.AntiCSRF && !in.DisableAntiCSRF {
		antiCSRF = internal.NewAntiCSRFToken()
	}

	payload := customClaims(in.AccessTokenPayload)
	accessPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode access token payload: %w", err)
	}
	data, err := json.Marshal(nonNil(in.SessionDataInDatabase))
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}

	sess := &session.Session{
		Handle:        handle,
		UserID:        in.UserID,
		RecipeUserID:  recipeUserID,
		TenantID:      tenantID,
		RefreshHash:   hash,
		AntiCSRFToken: antiCSRF,
		AccessPayload: accessPayload,
		Data:          data,
		CreatedAt:     now.Unix(),
		ExpiresAt:     refreshExpiry.Unix(),
	}
	access, err := c.mint(sess, payload, internal.RefreshHashHex(hash), now, now.Add(c.cfg.AccessTokenValidity))
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	refreshToken, err := internal.EncodeRefreshToken(handle, secret)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("session stored", zap.String("session_handle", handle), zap.String("tenant_id", tenantID))
	return &core.CreateSessionResult{
		Session:       coreSession(sess, payload),
		AccessToken:   access,
		RefreshToken:  core.TokenInfo{Token: refreshToken, Expiry: refreshExpiry, CreatedAt: now},
		AntiCSRFToken: antiCSRF,
	}, nil
}

func (c *Core) GetSession(ctx context.Context, in core.GetSessionInput) (*core.GetSessionResult, error) {
	tok, err := c.tokens.Verify(in.AccessToken)
	if err != nil {
		return &core.GetSessionResult{Status: core.StatusTryRefreshToken, Message: err.Error()}, nil
	}
	info, err := tok.Info()
	if err != nil {
		return &core.GetSessionResult{Status: core.StatusTryRefreshToken, Message: err.Error()}, nil
	}

	if in.DoAntiCSRFCheck && c.cfg.AntiCSRF {
		if in.AntiCSRFToken == "" {
			return &core.GetSessionResult{Status: core.StatusTryRefreshToken, Message: "anti-csrf token missing"}, nil
		}
		if in.AntiCSRFToken != info.AntiCSRFToken {
			return &core.GetSessionResult{Status: core.StatusTryRefreshToken, Message: "anti-csrf check failed"}, nil
		}
	}

	if in.CheckDatabase {
		sess, err := c.store.Get(ctx, info.SessionHandle)
		if errors.Is(err, session.ErrSessionNotFound) {
			return &core.GetSessionResult{Status: core.StatusUnauthorised, Message: "session revoked"}, nil
		}
		if err != nil {
			return nil, err
		}
		// Access tokens minted before the latest rotation stay valid until
		// they expire, so only the owner is compared.
		if sess.UserID != info.UserID {
			return &core.GetSessionResult{Status: core.StatusUnauthorised, Message: "session owner mismatch"}, nil
		}
	}

	return &core.GetSessionResult{
		Status: core.StatusOK,
		Session: core.Session{
			Handle:        info.SessionHandle,
			UserID:        info.UserID,
			RecipeUserID:  info.RecipeUserID,
			TenantID:      info.TenantID,
			UserDataInJWT: info.UserData,
			ExpiryTime:    info.Expiry,
		},
	}, nil
}

func (c *Core) RefreshSession(ctx context.Context, in core.RefreshSessionInput) (*core.RefreshSessionResult, error) {
	handle, secret, err := internal.DecodeRefreshToken(in.RefreshToken)
	if err != nil {
		return &core.RefreshSessionResult{Status: core.StatusUnauthorised, Message: "malformed refresh token"}, nil
	}
	if err := c.limiter.CheckRefresh(ctx, handle); err != nil {
		return nil, err
	}

	if c.cfg.AntiCSRF && !in.DisableAntiCSRF {
		stored, err := c.store.Get(ctx, handle)
		if errors.Is(err, session.ErrSessionNotFound) {
			return &core.RefreshSessionResult{Status: core.StatusUnauthorised, Message: "session not found"}, nil
		}
		if err != nil {
			return nil, err
		}
		if stored.AntiCSRFToken != "" && stored.AntiCSRFToken != in.AntiCSRFToken {
			return &core.RefreshSessionResult{Status: core.StatusUnauthorised, Message: "anti-csrf check failed"}, nil
		}
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	nextHash := internal.HashRefreshSecret(nextSecret)

	sess, err := c.store.RotateRefreshHash(ctx, handle, internal.HashRefreshSecret(secret), nextHash)
	switch {
	case errors.Is(err, session.ErrRefreshHashMismatch):
		_ = c.limiter.ResetRefresh(ctx, handle)
		res := &core.RefreshSessionResult{Status: core.StatusTokenTheftDetected, Message: "refresh token reused"}
		if sess != nil {
			res.Session = coreSession(sess, nil)
		} else {
			res.Session = core.Session{Handle: handle}
		}
		c.logger.Warn("refresh token reuse, session revoked", zap.String("session_handle", handle), zap.String("user_id", res.Session.UserID))
		return res, nil
	case errors.Is(err, session.ErrRefreshHashUnknown):
		c.logger.Debug("unrecognised refresh token", zap.String("session_handle", handle))
		return &core.RefreshSessionResult{Status: core.StatusUnauthorised, Message: "refresh token not recognised"}, nil
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
		return &core.RefreshSessionResult{Status: core.StatusUnauthorised, Message: "session not found"}, nil
	case err != nil:
		return nil, err
	}

	payload, err := decodeMap(sess.AccessPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrSessionCorrupt, err)
	}
	now := c.now()
	access, err := c.mint(sess, payload, internal.RefreshHashHex(nextHash), now, now.Add(c.cfg.AccessTokenValidity))
	if err != nil {
		return nil, err
	}
	refreshToken, err := internal.EncodeRefreshToken(handle, nextSecret)
	if err != nil {
		return nil, err
	}

	antiCSRF := ""
	if c.cfg.AntiCSRF {
		antiCSRF = sess.AntiCSRFToken
	}
	return &core.RefreshSessionResult{
		Status:        core.StatusOK,
		Session:       coreSession(sess, payload),
		AccessToken:   access,
		RefreshToken:  core.TokenInfo{Token: refreshToken, Expiry: time.Unix(sess.ExpiresAt, 0), CreatedAt: now},
		AntiCSRFToken: antiCSRF,
	}, nil
}

// RegenerateAccessToken reissues accessToken with newPayload. The new token
// keeps the expiry of the old one.
func (c *Core) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*core.RegenerateAccessTokenResult, error) {
	tok, err := c.tokens.VerifySignature(accessToken)
	if err != nil {
		return &core.RegenerateAccessTokenResult{Status: core.StatusUnauthorised}, nil
	}
	info, err := tok.Info()
	if err != nil {
		return &core.RegenerateAccessTokenResult{Status: core.StatusUnauthorised}, nil
	}

	payload := customClaims(newPayload)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode access token payload: %w", err)
	}
	sess, err := c.store.Update(ctx, info.SessionHandle, func(s *session.Session) error {
		s.AccessPayload = encoded
		return nil
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		return &core.RegenerateAccessTokenResult{Status: core.StatusUnauthorised}, nil
	}
	if err != nil {
		return nil, err
	}

	// Embed the refresh hash and anti-CSRF token the old token carried.
	minted := *sess
	minted.AntiCSRFToken = info.AntiCSRFToken
	access, err := c.mint(&minted, payload, info.RefreshTokenHash1, c.now(), info.Expiry)
	if err != nil {
		return nil, err
	}
	return &core.RegenerateAccessTokenResult{
		Status:      core.StatusOK,
		Session:     coreSession(sess, payload),
		AccessToken: &access,
	}, nil
}

func (c *Core) RevokeSession(ctx context.Context, handle string) (bool, error) {
	existed, err := c.store.Delete(ctx, handle)
	if err != nil {
		return false, err
	}
	_ = c.limiter.ResetRefresh(ctx, handle)
	return existed, nil
}

func (c *Core) RevokeSessionsByUserID(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
	tenants := []string{defaultTenant(tenantID)}
	if acrossAllTenants {
		all, err := c.store.TenantsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		tenants = all
	}

	var revoked []string
	for _, tenant := range tenants {
		handles, err := c.store.DeleteAllForUser(ctx, tenant, userID)
		if err != nil {
			return revoked, err
		}
		revoked = append(revoked, handles...)
	}
	for _, handle := range revoked {
		_ = c.limiter.ResetRefresh(ctx, handle)
	}
	return revoked, nil
}

func (c *Core) GetSessionInformation(ctx context.Context, handle string) (*core.SessionInformation, error) {
	sess, err := c.store.Get(ctx, handle)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	payload, err := decodeMap(sess.AccessPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrSessionCorrupt, err)
	}
	data, err := decodeMap(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrSessionCorrupt, err)
	}
	return &core.SessionInformation{
		Handle:                           sess.Handle,
		UserID:                           sess.UserID,
		RecipeUserID:                     sess.RecipeUserID,
		TenantID:                         sess.TenantID,
		SessionDataInDatabase:            data,
		CustomClaimsInAccessTokenPayload: payload,
		Expiry:                           time.Unix(sess.ExpiresAt, 0),
		TimeCreated:                      time.Unix(sess.CreatedAt, 0),
	}, nil
}

func (c *Core) UpdateSessionDataInDatabase(ctx context.Context, handle string, data map[string]any) (bool, error) {
	encoded, err := json.Marshal(nonNil(data))
	if err != nil {
		return false, fmt.Errorf("encode session data: %w", err)
	}
	_, err = c.store.Update(ctx, handle, func(s *session.Session) error {
		s.Data = encoded
		return nil
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// mint signs a latest-version access token for sess carrying payload.
func (c *Core) mint(sess *session.Session, payload map[string]any, refreshHashHex string, now, expiry time.Time) (core.TokenInfo, error) {
	claims := maps.Clone(payload)
	if claims == nil {
		claims = map[string]any{}
	}
	expiry = expiry.Truncate(time.Second)
	claims["sub"] = sess.UserID
	claims["rsub"] = sess.RecipeUserID
	claims["tId"] = sess.TenantID
	claims["sessionHandle"] = sess.Handle
	claims["refreshTokenHash1"] = refreshHashHex
	claims["iat"] = now.Unix()
	claims["exp"] = expiry.Unix()
	if sess.AntiCSRFToken != "" {
		claims["antiCsrfToken"] = sess.AntiCSRFToken
	}

	raw, err := c.tokens.Sign(claims, jwt.LatestVersion)
	if err != nil {
		return core.TokenInfo{}, fmt.Errorf("sign access token: %w", err)
	}
	return core.TokenInfo{Token: raw, Expiry: expiry, CreatedAt: now}, nil
}

func coreSession(sess *session.Session, payload map[string]any) core.Session {
	return core.Session{
		Handle:        sess.Handle,
		UserID:        sess.UserID,
		RecipeUserID:  sess.RecipeUserID,
		TenantID:      sess.TenantID,
		UserDataInJWT: payload,
		ExpiryTime:    time.Unix(sess.ExpiresAt, 0),
	}
}

// customClaims drops keys the core owns.
func customClaims(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if jwt.IsProtectedClaim(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func decodeMap(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func defaultTenant(tenantID string) string {
	if tenantID == "" {
		return jwt.DefaultTenantID
	}
	return tenantID
}
