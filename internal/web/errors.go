package web

// errors.go turns service errors into JSON error responses.
//
// The technical error is logged with the request ID; the client gets the
// coded message from core.MapError and a status derived from the sentinel.

import (
	"errors"
	"net/http"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("malformed request")

// statusRules map sentinels to HTTP statuses. First match wins.
var statusRules = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{core.ErrInvalidMode, http.StatusBadRequest},
	{core.ErrDepartmentsRequired, http.StatusBadRequest},
	{core.ErrInvalidDepartment, http.StatusBadRequest},
	{core.ErrUnsupportedEncoding, http.StatusBadRequest},
	{core.ErrInvalidCriteria, http.StatusBadRequest},
	{core.ErrSourceNotAllowed, http.StatusForbidden},
	{core.ErrImportNotFound, http.StatusNotFound},
	{core.ErrImportConflict, http.StatusConflict},
	{core.ErrImportNotActive, http.StatusConflict},
	{core.ErrJobNotRunning, http.StatusConflict},
	{core.ErrSourceUnreadable, http.StatusUnprocessableEntity},
	{core.ErrMissingHeader, http.StatusUnprocessableEntity},
	{core.ErrTooManyImports, http.StatusTooManyRequests},
	{core.ErrServiceShuttingDown, http.StatusServiceUnavailable},
}

// statusFor returns the HTTP status for err, 500 when nothing matches.
func statusFor(err error) int {
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			return rule.status
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its coded message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	if errors.Is(err, errBadRequest) {
		userMsg = core.UserMessage{
			Message: "Malformed request",
			Action:  "Check the request body and parameters",
			Code:    "REQ400",
		}
	}

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request rejected", args...)
	}

	// Server-side failures keep their driver text out of the response.
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		detail = userMsg.Message
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   detail,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}
