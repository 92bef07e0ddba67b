package apperrors

import (
	"context"
	"errors"
	"net/http"
)

// Error kinds reported in job status.
const (
	KindValidation = "ValidationError"
	KindNotFound   = "NotFound"
	KindConflict   = "Conflict"
	KindBuild      = "BuildFailure"
	KindRun        = "RunFailure"
	KindCallback   = "CallbackFailure"
	KindInternal   = "InternalError"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
// Build, run and callback failures are pipeline failures and map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Kind names the class of err. Unclassified errors are internal.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBuild):
		return KindBuild
	case errors.Is(err, ErrRun):
		return KindRun
	case errors.Is(err, ErrCallback):
		return KindCallback
	default:
		return KindInternal
	}
}
