package middleware

import (
	"context"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type sessionContextKey struct{}

// SessionFromContext returns the session stored by VerifySession.
func SessionFromContext(ctx context.Context) (*goSession.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goSession.Session)
	return s, ok && s != nil
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *goSession.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// VerifySession verifies the request's session before calling next.
// opts may be nil.
func VerifySession(engine *goSession.Engine, opts *goSession.VerifyOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, goSession.ErrEngineNotReady)
				return
			}

			s, err := engine.GetSession(r.Context(), goSession.NewHTTPRequest(r), goSession.NewHTTPResponse(w), opts)
			if err != nil {
				WriteError(w, err)
				return
			}
			if s == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireDatabaseCheck verifies the session and confirms it still exists in
// the core's store, catching revocations before the access token expires.
func RequireDatabaseCheck(engine *goSession.Engine) func(http.Handler) http.Handler {
	return VerifySession(engine, &goSession.VerifyOptions{CheckDatabase: true})
}

// OptionalSession attaches a session when the request carries one and lets
// anonymous requests through.
func OptionalSession(engine *goSession.Engine) func(http.Handler) http.Handler {
	return VerifySession(engine, &goSession.VerifyOptions{SessionRequired: goSession.Bool(false)})
}
