package goSession

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	headerAccessToken   = "st-access-token"
	headerRefreshToken  = "st-refresh-token"
	headerFrontToken    = "front-token"
	headerAntiCSRF      = "anti-csrf"
	headerAuthorization = "Authorization"
	headerAuthMode      = "st-auth-mode"
	headerRID           = "rid"
	headerExposeHeaders = "Access-Control-Expose-Headers"

	frontTokenRemove = "remove"
)

// accessCookieLifetime keeps the access cookie around after the JWT expires
// so the refresh flow can tell an expired session from a missing one.
const accessCookieLifetime = 100 * 365 * 24 * time.Hour

/*
====================================
READING TOKENS
====================================
*/

func (e *Engine) tokenTransferMethod(req Request, forCreateNewSession bool) TransferMethod {
	if fn := e.config.Transfer.GetTokenTransferMethod; fn != nil {
		return fn(req, forCreateNewSession)
	}
	if !forCreateNewSession {
		return TransferAny
	}
	switch strings.ToLower(req.Header(headerAuthMode)) {
	case string(TransferHeader):
		return TransferHeader
	case string(TransferCookie):
		return TransferCookie
	}
	return TransferAny
}

func allows(allowed, method TransferMethod) bool {
	return allowed == TransferAny || allowed == method
}

func (e *Engine) cookieName(typ TokenType) string {
	if typ == TokenRefresh {
		return e.config.Cookie.RefreshTokenName
	}
	return e.config.Cookie.AccessTokenName
}

func responseHeaderName(typ TokenType) string {
	if typ == TokenRefresh {
		return headerRefreshToken
	}
	return headerAccessToken
}

// readToken returns the token of typ carried by method. multiple is set when
// more than one cookie of that type was sent.
func (e *Engine) readToken(req Request, typ TokenType, method TransferMethod) (token string, multiple bool) {
	if method == TransferCookie {
		values := req.Cookies(e.cookieName(typ))
		if len(values) == 0 {
			return "", false
		}
		return values[0], len(values) > 1
	}
	return bearerToken(req), false
}

func bearerToken(req Request) string {
	raw := req.Header(headerAuthorization)
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(raw[7:])
}

/*
====================================
WRITING TOKENS
====================================
*/

type responseTokens struct {
	userID        string
	payload       map[string]any
	accessToken   string
	accessExpiry  time.Time
	refreshToken  string
	refreshExpiry time.Time
	antiCSRFToken string
}

func (e *Engine) attachTokens(resp Response, method TransferMethod, t responseTokens) {
	e.setFrontToken(resp, buildFrontToken(t.userID, t.accessExpiry, t.payload))
	e.setToken(resp, TokenAccess, t.accessToken, time.Now().Add(accessCookieLifetime), method)
	if e.config.Verify.ExposeAccessTokenToFrontendInCookieBasedAuth && method == TransferCookie {
		e.setToken(resp, TokenAccess, t.accessToken, time.Now().Add(accessCookieLifetime), TransferHeader)
	}
	if t.refreshToken != "" {
		e.setToken(resp, TokenRefresh, t.refreshToken, t.refreshExpiry, method)
	}
	if t.antiCSRFToken != "" {
		resp.SetHeader(headerAntiCSRF, t.antiCSRFToken)
		resp.AddHeader(headerExposeHeaders, headerAntiCSRF)
	}
}

func (e *Engine) setToken(resp Response, typ TokenType, value string, expires time.Time, method TransferMethod) {
	if method == TransferCookie {
		path := e.config.Cookie.AccessTokenPath
		if typ == TokenRefresh {
			path = e.resolved.refreshPath
		}
		e.setCookie(resp, e.cookieName(typ), value, expires, path, e.config.Cookie.Domain)
		return
	}
	resp.SetHeader(responseHeaderName(typ), value)
	resp.AddHeader(headerExposeHeaders, responseHeaderName(typ))
}

func (e *Engine) setCookie(resp Response, name, value string, expires time.Time, path, domain string) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   e.resolved.secure,
		SameSite: e.resolved.sameSite,
	}
	if value == "" {
		c.Expires = time.Unix(0, 0)
		c.MaxAge = -1
	}
	resp.SetCookie(c)
}

func (e *Engine) setFrontToken(resp Response, value string) {
	resp.SetHeader(headerFrontToken, value)
	resp.AddHeader(headerExposeHeaders, headerFrontToken)
}

/*
====================================
CLEARING TOKENS
====================================
*/

func (e *Engine) clearSession(resp Response, method TransferMethod) {
	e.setToken(resp, TokenAccess, "", time.Time{}, method)
	e.setToken(resp, TokenRefresh, "", time.Time{}, method)
	resp.DeleteHeader(headerAntiCSRF)
	e.setFrontToken(resp, frontTokenRemove)
}

func (e *Engine) clearSessionFromAllTransferMethods(resp Response) {
	for _, method := range availableTransferMethods {
		e.clearSession(resp, method)
	}
}

// clearOlderDomainCookies removes token cookies set under Cookie.OlderDomain.
func (e *Engine) clearOlderDomainCookies(resp Response) bool {
	older := e.config.Cookie.OlderDomain
	if older == "" {
		return false
	}
	e.setCookie(resp, e.config.Cookie.AccessTokenName, "", time.Time{}, e.config.Cookie.AccessTokenPath, older)
	e.setCookie(resp, e.config.Cookie.RefreshTokenName, "", time.Time{}, e.resolved.refreshPath, older)
	return true
}

// clearLegacyCookie removes the id refresh cookie older clients still carry.
func (e *Engine) clearLegacyCookie(req Request, resp Response) bool {
	if len(req.Cookies(e.config.Cookie.LegacyIDRefreshName)) == 0 {
		return false
	}
	e.setCookie(resp, e.config.Cookie.LegacyIDRefreshName, "", time.Time{}, e.config.Cookie.AccessTokenPath, e.config.Cookie.Domain)
	return true
}

/*
====================================
FRONT TOKEN
====================================
*/

type frontToken struct {
	UID string         `json:"uid"`
	ATE int64          `json:"ate"`
	UP  map[string]any `json:"up"`
}

// buildFrontToken encodes the client-readable summary of an access token.
func buildFrontToken(userID string, accessExpiry time.Time, payload map[string]any) string {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(frontToken{UID: userID, ATE: accessExpiry.UnixMilli(), UP: payload})
	if err != nil {
		raw, _ = json.Marshal(frontToken{UID: userID, ATE: accessExpiry.UnixMilli(), UP: map[string]any{}})
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeFrontToken parses a front-token header value.
func DecodeFrontToken(value string) (userID string, accessExpiry time.Time, payload map[string]any, err error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	var ft frontToken
	if err := json.Unmarshal(raw, &ft); err != nil {
		return "", time.Time{}, nil, err
	}
	return ft.UID, time.UnixMilli(ft.ATE), ft.UP, nil
}
