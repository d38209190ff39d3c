package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/identitylabs/identity-system/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors. The
// conflict flags are only present on 409 responses.
type errorResponse struct {
	Error         string `json:"error"`
	UsernameTaken *bool  `json:"username_taken,omitempty"`
	EmailTaken    *bool  `json:"email_taken,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps the domain error taxonomy to deterministic HTTP status codes.
//   - Never reveals which of username/password/disabled failed a login, and
//     never distinguishes why a token was rejected.
//   - Does reveal which of username/email caused a registration conflict.
//   - Logs unexpected errors internally without leaking details to the client.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, middleware 401/403).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	if ce, ok := domain.IsConflict(err); ok {
		return http.StatusConflict, errorResponse{
			Error:         ce.Error(),
			UsernameTaken: &ce.UsernameTaken,
			EmailTaken:    &ce.EmailTaken,
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "could not validate credentials"}
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized, errorResponse{Error: "could not validate credentials"}
	case errors.Is(err, domain.ErrInactiveAccount):
		return http.StatusForbidden, errorResponse{Error: "inactive account"}
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorResponse{Error: "too many login attempts"}
	case errors.Is(err, domain.ErrRepositoryUnavailable):
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("user repository unavailable")
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
