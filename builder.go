package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/claims"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	core   CoreClient

	registry     *claims.Registry
	interceptors []Interceptor

	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCoreClient sets the authentication core. Required.
func (b *Builder) WithCoreClient(c CoreClient) *Builder {
	b.core = c
	return b
}

// WithClaims sets the claim registry. Claims registered there are added to
// every new session and their global validators run on every verification.
func (b *Builder) WithClaims(r *claims.Registry) *Builder {
	b.registry = r
	return b
}

// WithInterceptors wraps the engine's [Functions]. The first interceptor is the outermost.
func (b *Builder) WithInterceptors(interceptors ...Interceptor) *Builder {
	b.interceptors = append(b.interceptors, interceptors...)
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go. Audit must also be enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.core == nil {
		return nil, errors.New("core client required")
	}

	registry := b.registry
	if registry == nil {
		registry = claims.NewRegistry()
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:   cfg,
		resolved: cfg.resolve(),
		core:     b.core,
		claims:   registry,
		logger:   logger.Named("session"),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger.Named("audit"),
		}, b.auditSink),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
	}
	e.functions = chainFunctions(baseFunctions{e: e}, b.interceptors)

	e.logger.Info("session engine ready",
		zap.String("anti_csrf", string(e.resolved.antiCSRF)),
		zap.String("same_site", sameSiteName(e.resolved.sameSite)),
		zap.Bool("secure_cookies", e.resolved.secure),
		zap.String("issuer", e.resolved.issuer),
		zap.Int("claims", len(registry.All())),
	)

	b.built = true
	return e, nil
}
