package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aras-services/aras-gateway/internal/gatewayerr"
)

// errorBody is the JSON shape spec §6/§7 mandates for the non-2xx
// responses the gateway produces itself (as opposed to a backend reply
// forwarded verbatim), except the bare Unauthenticated 401 and the
// plain-text Unauthorized/BadConfig answers.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	TraceID   string `json:"traceId"`
	Exception string `json:"exception,omitempty"`
}

// writeError answers a request with the normalized error body, status
// derived from err.Kind. If showException is true (non-production), the
// underlying cause's text is attached for debugging.
func writeError(w http.ResponseWriter, r *http.Request, err *gatewayerr.Error, showException bool) {
	body := errorBody{
		Code:    string(err.Kind),
		Message: err.Message,
		TraceID: middleware.GetReqID(r.Context()),
	}
	if showException && err.Cause != nil {
		body.Exception = err.Cause.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gatewayerr.StatusFor(err.Kind))
	json.NewEncoder(w).Encode(body)
}

// writePlainText answers with a bare status and text body, used for the
// BadConfig/Unauthorized cases spec §7 marks as "text" rather than JSON.
func writePlainText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
