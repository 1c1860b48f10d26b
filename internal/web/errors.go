package web

// errors.go turns handler errors into JSON responses. The technical error
// is logged with the request id; the client gets the mapped user message.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/docingest/internal/ingest"
	"github.com/JonMunkholm/docingest/internal/logging"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// statusByCode maps user message codes to HTTP statuses. Unlisted codes
// are 500.
var statusByCode = map[string]int{
	"PARSE001": http.StatusBadRequest,
	"PARSE002": http.StatusBadRequest,
	"PARSE003": http.StatusBadRequest,
	"PARSE004": http.StatusUnsupportedMediaType,
	"PARSE005": http.StatusRequestEntityTooLarge,
	"COL001":   http.StatusForbidden,
	"COL002":   http.StatusBadRequest,
	"STORE001": http.StatusBadGateway,
	"STORE002": http.StatusServiceUnavailable,
	"STORE003": http.StatusBadGateway,
	"STORE004": http.StatusServiceUnavailable,
	"ING001":   http.StatusServiceUnavailable,
	"ING002":   http.StatusServiceUnavailable,
	"ING003":   http.StatusGatewayTimeout,
	"ING004":   http.StatusBadRequest,
	"ING005":   http.StatusNotImplemented,
	"ING006":   http.StatusBadRequest,
	"ING007":   http.StatusTooManyRequests,
	"ING008":   http.StatusNotImplemented,
}

// statusFor returns the HTTP status for msg.
func statusFor(msg ingest.UserMessage) int {
	if status, ok := statusByCode[msg.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := ingest.MapError(err)
	status := statusFor(msg)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)

	if status == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, r, status, ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeJSON writes v with status 200.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	writeJSONStatus(w, r, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since the
// header is already sent.
func writeJSONStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
