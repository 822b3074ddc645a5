package goSession

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/publicsuffix"
)

// Config holds everything the engine needs apart from its collaborators.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Domains  DomainConfig
	Cookie   CookieConfig
	Transfer TransferConfig
	AntiCSRF AntiCSRFConfig
	Verify   VerifyConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
DOMAIN CONFIG
====================================
*/

// DomainConfig names where the API and the website are served.
type DomainConfig struct {
	APIDomain     string `validate:"required,url"`
	WebsiteDomain string `validate:"required,url"`
	APIBasePath   string `validate:"required,startswith=/"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls session cookies.
type CookieConfig struct {
	AccessTokenName     string `validate:"required"`
	RefreshTokenName    string `validate:"required,nefield=AccessTokenName"`
	LegacyIDRefreshName string `validate:"required"`
	Domain              string
	// OlderDomain is a previous Domain whose cookies must be cleared when
	// duplicates show up.
	OlderDomain     string
	AccessTokenPath string `validate:"required,startswith=/"`
	// RefreshTokenPath defaults to APIBasePath + "/session/refresh".
	RefreshTokenPath string `validate:"omitempty,startswith=/"`
	// SameSite zero means: None when the API and website are cross-site, Lax otherwise.
	SameSite http.SameSite `validate:"gte=0,lte=4"`
	// Secure nil means: true when APIDomain is https.
	Secure *bool
}

/*
====================================
TRANSFER CONFIG
====================================
*/

// TransferConfig decides how tokens travel per request.
type TransferConfig struct {
	// GetTokenTransferMethod overrides the default resolution. The default
	// accepts any method on input and reads the st-auth-mode header when
	// creating a session.
	GetTokenTransferMethod func(req Request, forCreateNewSession bool) TransferMethod
}

/*
====================================
ANTI-CSRF CONFIG
====================================
*/

// AntiCSRFConfig selects the CSRF defence. Empty Mode resolves to
// VIA_CUSTOM_HEADER when SameSite is None and NONE otherwise.
type AntiCSRFConfig struct {
	Mode AntiCSRFMode `validate:"omitempty,oneof=VIA_TOKEN VIA_CUSTOM_HEADER NONE"`
}

/*
====================================
VERIFY CONFIG
====================================
*/

// VerifyConfig tunes request verification.
type VerifyConfig struct {
	// CheckDatabase makes every verification consult the core store.
	CheckDatabase bool
	// ExposeAccessTokenToFrontendInCookieBasedAuth also sends the access
	// token as a header when cookies carry it.
	ExposeAccessTokenToFrontendInCookieBasedAuth bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int `validate:"gte=0"`
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config for an API and website both on localhost.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Domains: DomainConfig{
			APIDomain:     "http://localhost:3001",
			WebsiteDomain: "http://localhost:3000",
			APIBasePath:   "/auth",
		},
		Cookie: CookieConfig{
			AccessTokenName:     "sAccessToken",
			RefreshTokenName:    "sRefreshToken",
			LegacyIDRefreshName: "sIdRefreshToken",
			AccessTokenPath:     "/",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Cookie.Secure != nil {
		secure := *cfg.Cookie.Secure
		out.Cookie.Secure = &secure
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks field constraints and the cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if _, err := parseDomain(c.Domains.APIDomain); err != nil {
		return fmt.Errorf("Domains.APIDomain: %w", err)
	}
	if _, err := parseDomain(c.Domains.WebsiteDomain); err != nil {
		return fmt.Errorf("Domains.WebsiteDomain: %w", err)
	}
	if c.Cookie.OlderDomain != "" && c.Cookie.OlderDomain == c.Cookie.Domain {
		return errors.New("Cookie.OlderDomain must differ from Cookie.Domain")
	}
	if c.Cookie.LegacyIDRefreshName == c.Cookie.AccessTokenName || c.Cookie.LegacyIDRefreshName == c.Cookie.RefreshTokenName {
		return errors.New("Cookie.LegacyIDRefreshName must differ from the token cookie names")
	}
	if c.Audit.Enabled && c.Audit.BufferSize == 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

/*
====================================
RESOLUTION
====================================
*/

// resolvedConfig holds the values derived from Config once at build time.
type resolvedConfig struct {
	sameSite    http.SameSite
	secure      bool
	antiCSRF    AntiCSRFMode
	refreshPath string
	issuer      string
	apiSite     string
	websiteSite string
}

func (c *Config) resolve() resolvedConfig {
	api, _ := parseDomain(c.Domains.APIDomain)
	website, _ := parseDomain(c.Domains.WebsiteDomain)

	r := resolvedConfig{
		apiSite:     topLevelDomain(api.Hostname()),
		websiteSite: topLevelDomain(website.Hostname()),
		issuer:      strings.TrimSuffix(c.Domains.APIDomain, "/") + c.Domains.APIBasePath,
		refreshPath: c.Cookie.RefreshTokenPath,
	}
	if r.refreshPath == "" {
		r.refreshPath = strings.TrimSuffix(c.Domains.APIBasePath, "/") + "/session/refresh"
	}

	r.sameSite = c.Cookie.SameSite
	if r.sameSite == 0 {
		if r.apiSite != r.websiteSite || api.Scheme != website.Scheme {
			r.sameSite = http.SameSiteNoneMode
		} else {
			r.sameSite = http.SameSiteLaxMode
		}
	}

	if c.Cookie.Secure != nil {
		r.secure = *c.Cookie.Secure
	} else {
		r.secure = api.Scheme == "https"
	}

	r.antiCSRF = c.AntiCSRF.Mode
	if r.antiCSRF == "" {
		if r.sameSite == http.SameSiteNoneMode {
			r.antiCSRF = AntiCSRFViaCustomHeader
		} else {
			r.antiCSRF = AntiCSRFNone
		}
	}
	return r
}

// localOrIP reports whether both sites are localhost or IP literals, where
// browsers accept SameSite=None cookies without Secure.
func (r resolvedConfig) localOrIP() bool {
	return isLocalOrIP(r.apiSite) && isLocalOrIP(r.websiteSite)
}

func parseDomain(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func topLevelDomain(host string) string {
	if isLocalOrIP(host) {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

func isLocalOrIP(host string) bool {
	return host == "localhost" || net.ParseIP(host) != nil
}
