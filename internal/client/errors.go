package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/internal/lifecycle"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrTimeout      = errors.New("request timed out")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap maps the status code onto the package sentinels so callers can use
// errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// Hint explains server errors that usually mean the backend database is out
// of date with the code.
func (e *APIError) Hint() string {
	if e.StatusCode < http.StatusInternalServerError {
		return ""
	}
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "column") || strings.Contains(msg, "does not exist") {
		return "the server database schema looks out of date; run the migrations"
	}
	return ""
}

func wrapTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Notification turns any error from this package, the tracker or the
// packager into a message fit for the user.
func Notification(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	hasAPI := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, export.ErrNothingToExport):
		return "There are no files to download for this question set."
	case errors.Is(err, export.ErrAllFilesFailed):
		return "None of the files could be downloaded. Please try again."
	case errors.Is(err, lifecycle.ErrNotConfirmed):
		return "Permanent deletion cancelled."
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return "Move the item to the recycle bin before deleting it permanently."
	case errors.Is(err, ErrTimeout):
		return "The server took too long to respond. Please try again."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrForbidden):
		if hasAPI && apiErr.Message != "" {
			return "Permission denied: " + apiErr.Message
		}
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrNotFound):
		return "The question set or file could not be found."
	case errors.Is(err, ErrConflict):
		if hasAPI && apiErr.Message != "" {
			return apiErr.Message
		}
		return "The item changed on the server. Refresh and try again."
	case hasAPI:
		msg := "The server failed to process the request"
		if apiErr.Message != "" {
			msg += ": " + apiErr.Message
		}
		if hint := apiErr.Hint(); hint != "" {
			msg += " (" + hint + ")"
		}
		return msg + "."
	default:
		return "Something went wrong: " + err.Error()
	}
}
