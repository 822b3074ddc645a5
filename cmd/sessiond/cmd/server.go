package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/core/httpcore"
	"github.com/MrEthical07/goSession/core/rediscore"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/jwt"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// app holds everything the HTTP server needs.
type app struct {
	cfg     *Config
	logger  *zap.Logger
	engine  *goSession.Engine
	redis   redis.UniversalClient
	metrics http.Handler
	closers []func() error
}

func newApp(cfg *Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = a.connectRedis(); err != nil {
		return nil, err
	}
	coreClient, err := a.newCore()
	if err != nil {
		return nil, err
	}

	b := goSession.New().
		WithConfig(engineConfig(cfg.Session)).
		WithCoreClient(coreClient).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)
	if cfg.Session.Audit {
		b = b.WithAuditSink(newZapAuditSink(logger))
	}
	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.closers = append(a.closers, func() error {
		engine.Close()
		return nil
	})

	a.metrics, err = promexport.Handler(promexport.NewCollector(engine))
	if err != nil {
		return nil, fmt.Errorf("metrics handler: %w", err)
	}

	for _, finding := range engine.SecurityReport().Warnings {
		logger.Warn("session security", zap.String("finding", finding))
	}
	return a, nil
}

func (a *app) connectRedis() error {
	addr := a.cfg.Redis.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		addr = mr.Addr()
		a.closers = append(a.closers, func() error {
			mr.Close()
			return nil
		})
		a.logger.Warn("no redis configured, sessions are kept in memory", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *app) newCore() (goSession.CoreClient, error) {
	if a.cfg.Core.URL != "" {
		a.logger.Info("using remote core", zap.String("url", a.cfg.Core.URL))
		return httpcore.New(httpcore.Config{
			BaseURL: a.cfg.Core.URL,
			APIKey:  a.cfg.Core.APIKey,
			Timeout: a.cfg.Core.Timeout,
		}, httpcore.WithLogger(a.logger.Named("core")))
	}

	key := []byte(a.cfg.Session.SigningKey)
	if len(key) == 0 {
		secret, err := internal.NewRefreshSecret()
		if err != nil {
			return nil, err
		}
		key = []byte(hex.EncodeToString(secret[:]))
		a.logger.Warn("no signing key configured, using an ephemeral key")
	}
	tokens, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: key})
	if err != nil {
		return nil, err
	}
	s := a.cfg.Session
	return rediscore.New(a.redis, tokens, rediscore.Config{
		Prefix:               a.cfg.Redis.Prefix,
		AccessTokenValidity:  s.AccessTokenValidity,
		RefreshTokenValidity: s.RefreshTokenValidity,
		AntiCSRF:             s.AntiCSRF == string(goSession.AntiCSRFViaToken),
		MaxRefreshAttempts:   s.MaxRefreshAttempts,
		RefreshWindow:        s.RefreshWindow,
	}, rediscore.WithLogger(a.logger.Named("core")))
}

func engineConfig(s SessionConfig) goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.Domains = goSession.DomainConfig{
		APIDomain:     s.APIDomain,
		WebsiteDomain: s.WebsiteDomain,
		APIBasePath:   s.APIBasePath,
	}
	cfg.Cookie.Domain = s.CookieDomain
	cfg.Cookie.OlderDomain = s.OlderCookieDomain
	cfg.AntiCSRF.Mode = goSession.AntiCSRFMode(s.AntiCSRF)
	cfg.Verify.CheckDatabase = s.CheckDatabase
	cfg.Audit.Enabled = s.Audit

	switch method := goSession.TransferMethod(s.TransferMethod); method {
	case goSession.TransferHeader, goSession.TransferCookie:
		cfg.Transfer.GetTokenTransferMethod = func(goSession.Request, bool) goSession.TransferMethod {
			return method
		}
	}
	return cfg
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func (a *app) routes() http.Handler {
	base := a.cfg.Session.APIBasePath
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+base+"/session/create", a.handleCreate)
	mux.Handle(base+"/session/refresh", middleware.RefreshHandler(a.engine))
	mux.Handle(base+"/signout", middleware.SignOutHandler(a.engine))
	mux.Handle("GET /sessioninfo", middleware.VerifySession(a.engine, nil)(http.HandlerFunc(a.handleSessionInfo)))
	mux.Handle("GET /metrics", a.metrics)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	return a.withRequestContext(mux)
}

type createRequest struct {
	UserID                string         `json:"userId"`
	TenantID              string         `json:"tenantId"`
	AccessTokenPayload    map[string]any `json:"accessTokenPayload"`
	SessionDataInDatabase map[string]any `json:"sessionDataInDatabase"`
}

// handleCreate starts a session for any user id. Demo only: there is no
// credential check.
func (a *app) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	if in.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "userId is required"})
		return
	}

	s, err := a.engine.CreateNewSession(r.Context(), goSession.NewHTTPRequest(r), goSession.NewHTTPResponse(w), goSession.CreateSessionInput{
		TenantID:              in.TenantID,
		UserID:                in.UserID,
		AccessTokenPayload:    in.AccessTokenPayload,
		SessionDataInDatabase: in.SessionDataInDatabase,
	})
	if err != nil {
		a.logger.Warn("create session failed", zap.Error(err), zap.String("request_id", requestID(r)))
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "OK",
		"sessionHandle": s.Handle(),
		"userId":        s.UserID(),
	})
}

func (a *app) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, goSession.ErrUnauthorised)
		return
	}
	data, err := s.GetSessionDataFromDatabase(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionHandle":         s.Handle(),
		"userId":                s.UserID(),
		"tenantId":              s.TenantID(),
		"accessTokenPayload":    s.AccessTokenPayload(),
		"sessionDataInDatabase": data,
	})
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRequestContext tags each request with an id and client IP and logs it
// on completion.
func (a *app) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		r.Header.Set(requestIDHeader, id)
		w.Header().Set(requestIDHeader, id)

		ctx := r.Context()
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ctx = goSession.WithClientIP(ctx, host)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		a.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
