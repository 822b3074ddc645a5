package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type errorBody struct {
	Message               string                           `json:"message"`
	ClaimValidationErrors []goSession.ClaimValidationError `json:"claimValidationErrors,omitempty"`
}

// WriteError maps an engine error to its HTTP status and JSON body.
//
//	try refresh     401 {"message":"try refresh token"}
//	unauthorised    401 {"message":"unauthorised"}
//	token theft     401 {"message":"token theft detected"}
//	invalid claims  403 {"message":"invalid claim","claimValidationErrors":[...]}
//	core down       503
func WriteError(w http.ResponseWriter, err error) {
	var invalid *goSession.InvalidClaimsError

	switch {
	case err == nil:
		return
	case errors.Is(err, goSession.ErrTryRefreshToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "try refresh token"})
	case errors.Is(err, goSession.ErrTokenTheftDetected):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "token theft detected"})
	case errors.Is(err, goSession.ErrUnauthorised):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "unauthorised"})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusForbidden, errorBody{
			Message:               "invalid claim",
			ClaimValidationErrors: invalid.Failures,
		})
	case errors.Is(err, goSession.ErrCoreUnavailable), errors.Is(err, goSession.ErrEngineNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Message: "service unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
