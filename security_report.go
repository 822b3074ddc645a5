package goSession

import "net/http"

// SecurityReport summarises the effective security posture of an engine.
type SecurityReport struct {
	AntiCSRFMode       AntiCSRFMode
	CookieSameSite     string
	CookieSecure       bool
	LocalOrIPDomains   bool
	CrossSite          bool
	OlderCookieDomain  bool
	CheckDatabase      bool
	ExposeAccessToken  bool
	RegisteredClaims   []string
	GlobalValidatorIDs []string
	Warnings           []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		AntiCSRFMode:      e.resolved.antiCSRF,
		CookieSameSite:    sameSiteName(e.resolved.sameSite),
		CookieSecure:      e.resolved.secure,
		LocalOrIPDomains:  e.resolved.localOrIP(),
		CrossSite:         e.resolved.apiSite != e.resolved.websiteSite,
		OlderCookieDomain: e.config.Cookie.OlderDomain != "",
		CheckDatabase:     e.config.Verify.CheckDatabase,
		ExposeAccessToken: e.config.Verify.ExposeAccessTokenToFrontendInCookieBasedAuth,
	}
	for _, c := range e.claims.All() {
		r.RegisteredClaims = append(r.RegisteredClaims, c.Key())
	}
	for _, v := range e.claims.GlobalValidators() {
		r.GlobalValidatorIDs = append(r.GlobalValidatorIDs, v.ID())
	}

	if e.resolved.sameSite == http.SameSiteNoneMode && e.resolved.antiCSRF == AntiCSRFNone {
		r.Warnings = append(r.Warnings, "SameSite=None cookies without anti-CSRF protection")
	}
	if e.resolved.sameSite == http.SameSiteNoneMode && !e.resolved.secure && !r.LocalOrIPDomains {
		r.Warnings = append(r.Warnings, "cookie-based sessions will be refused: SameSite=None requires Secure")
	}
	if e.config.Verify.ExposeAccessTokenToFrontendInCookieBasedAuth {
		r.Warnings = append(r.Warnings, "access token is readable by scripts in cookie mode")
	}
	return r
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteNoneMode:
		return "none"
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteStrictMode:
		return "strict"
	default:
		return "default"
	}
}
