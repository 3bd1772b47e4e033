package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"sda-calculator/internal/errors"
)

// statusFor maps a domain error to an HTTP status
func statusFor(err error) int {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	e, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case errors.TypeInput, errors.TypeValidation, errors.TypeParsing:
		return http.StatusBadRequest
	case errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders a domain error as the wire error body
func errorBody(err error) ErrorResponse {
	e, ok := errors.As(err)
	if !ok {
		return ErrorResponse{Detail: "Calculation error: " + err.Error(), Type: errors.TypeInternal}
	}

	return ErrorResponse{Detail: e.Message, Type: e.Type, Context: e.Context, Errors: e.Fields}
}

// writeDomainError writes err with its mapped status
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	s.writeJSON(w, errorBody(err), status)
}
