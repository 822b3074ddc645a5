package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// RefreshHandler rotates the request's refresh token. New tokens are written
// to the response and the body is empty.
func RefreshHandler(engine *goSession.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			WriteError(w, goSession.ErrEngineNotReady)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if _, err := engine.RefreshSession(r.Context(), goSession.NewHTTPRequest(r), goSession.NewHTTPResponse(w)); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// SignOutHandler revokes the request's session, if any, and clears its tokens.
func SignOutHandler(engine *goSession.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			WriteError(w, goSession.ErrEngineNotReady)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := engine.SignOut(r.Context(), goSession.NewHTTPRequest(r), goSession.NewHTTPResponse(w)); err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	})
}
