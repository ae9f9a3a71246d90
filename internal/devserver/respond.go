package devserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/devserver/users"
	"github.com/go-chi/chi/v5/middleware"
)

// envelope is the body of every API response.
type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Message: message, Data: data}); err != nil {
		s.logger.Warn(r.Context(), "write response", "error", err)
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, message, nil)
}

// writeError maps domain errors to statuses. Unknown errors are logged and
// reported as internal.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, common.ErrorInternal.Error()

	switch {
	case errors.Is(err, common.ErrInvalidPassword):
		status, message = http.StatusUnauthorized, common.ErrInvalidPassword.Error()
	case errors.Is(err, common.ErrTokenExpired):
		status, message = http.StatusUnauthorized, common.ErrTokenExpired.Error()
	case errors.Is(err, common.ErrRefreshTokenExpired):
		status, message = http.StatusUnauthorized, common.ErrRefreshTokenExpired.Error()
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		status, message = http.StatusUnauthorized, common.ErrorUnauthorized.Error()
	case errors.Is(err, common.ErrNotVerified):
		status, message = http.StatusForbidden, common.ErrNotVerified.Error()
	case errors.Is(err, common.ErrInvalidCSRF):
		status, message = http.StatusForbidden, common.ErrInvalidCSRF.Error()
	case errors.Is(err, common.ErrInvalidOTP):
		status, message = http.StatusBadRequest, common.ErrInvalidOTP.Error()
	case errors.Is(err, users.ErrAlreadyVerified):
		status, message = http.StatusBadRequest, users.ErrAlreadyVerified.Error()
	case errors.Is(err, common.ErrorAlreadyExists):
		status, message = http.StatusConflict, "user already exists"
	case errors.Is(err, common.ErrorNotFound):
		status, message = http.StatusNotFound, "user not found"
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}

	s.writeMessage(w, r, status, message)
}
