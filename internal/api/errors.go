package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hostmesh/hostmesh/models"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	FieldError map[string]string      `json:"field_errors,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func NotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Context: map[string]interface{}{"id": id},
	}
}

func ConflictError(message, details string) *APIError {
	return NewAPIError(http.StatusConflict, message, details)
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

// domainError maps a coordinator error to an APIError. Business-rule
// refusals (offline host, full session, exceeded capacity) map to 409 so
// clients can tell them apart from malformed requests; retryable store
// outages map to 503.
func domainError(err error, resource, id string) *APIError {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		fields := map[string]string{}
		if verr.Field != "" {
			fields[verr.Field] = verr.Reason
		}
		return &APIError{
			Code:       http.StatusBadRequest,
			Message:    "validation failed",
			Details:    verr.Error(),
			FieldError: fields,
		}
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		return NotFoundError(resource, id)
	case errors.Is(err, models.ErrHostOffline):
		return ConflictError("host is offline", "the selected host is not accepting sessions")
	case errors.Is(err, models.ErrZoneDisabled):
		return ConflictError("zone not hostable", "the zone is not accepting p2p sessions")
	case errors.Is(err, models.ErrCapacityExceeded):
		return ConflictError("host capacity exceeded", "the host has no free capacity")
	case errors.Is(err, models.ErrSessionFull):
		return ConflictError("session full", "the session is at its player limit")
	case errors.Is(err, models.ErrNotAMember):
		return ConflictError("not a member", "the player is not part of this session")
	case errors.Is(err, models.ErrAlreadyTerminal):
		return ConflictError("session already terminal", "the session has already ended or failed")
	case errors.Is(err, models.ErrInvalidTransition):
		return ConflictError("invalid transition", "the session cannot move to the requested state")
	case errors.Is(err, models.ErrStoreUnavailable):
		return NewAPIError(http.StatusServiceUnavailable, "store unavailable", "the coordinator's store is unreachable, retry later")
	default:
		return InternalError("internal error", err.Error())
	}
}

// HTTPErrorHandler is a custom error handler for Echo.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't send response if already sent
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	code := http.StatusInternalServerError

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		apiErr = &APIError{
			Code:    code,
			Message: getHTTPMessage(code),
			Details: fmt.Sprintf("%v", he.Message),
		}
	} else if ae, ok := err.(*APIError); ok {
		apiErr = ae
		code = ae.Code
	} else {
		apiErr = &APIError{
			Code:    code,
			Message: "Internal server error",
			Details: err.Error(),
		}
	}

	// Don't expose internal errors in production
	if code == http.StatusInternalServerError && !c.Echo().Debug {
		apiErr.Details = "An internal error occurred. Please try again later."
	}

	if err := c.JSON(code, apiErr); err != nil {
		c.Logger().Error(err)
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusUnauthorized:        "Unauthorized",
		http.StatusForbidden:           "Forbidden",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusConflict:            "Conflict",
		http.StatusUnprocessableEntity: "Unprocessable entity",
		http.StatusTooManyRequests:     "Too many requests",
		http.StatusInternalServerError: "Internal server error",
		http.StatusBadGateway:          "Bad gateway",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
