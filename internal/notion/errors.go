// Package notion wraps github.com/jomei/notionapi behind the engine's
// RemoteClient interface: search databases, fetch schema, paginate rows,
// create/update rows and properties, and resolve a data source ID from a
// database ID. Retry and error classification follow the same shape as the
// teacher's internal/graph/client.go and errors.go, reimplemented on top of
// github.com/sethvargo/go-retry via internal/retryutil instead of a
// hand-rolled backoff loop.
package notion

import (
	"errors"
	"fmt"

	napi "github.com/jomei/notionapi"
)

// Sentinel errors for remote-store status classification.
// Use errors.Is(err, notion.ErrNotFound) to check.
var (
	ErrBadRequest    = errors.New("notion: bad request")
	ErrUnauthorized  = errors.New("notion: unauthorized")
	ErrForbidden     = errors.New("notion: forbidden")
	ErrNotFound      = errors.New("notion: not found")
	ErrConflict      = errors.New("notion: conflict")
	ErrThrottled     = errors.New("notion: rate limited")
	ErrServerError   = errors.New("notion: server error")
	ErrNotLoggedIn   = errors.New("notion: not logged in")
	ErrValidation    = errors.New("notion: validation error")
)

// Error wraps a sentinel error with the remote store's HTTP status code and
// error code/message for debugging.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("notion: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyAPIError maps a *notionapi.Error to a sentinel error and wraps it.
// Returns nil if err is not a *notionapi.Error (caller treats it as a plain
// transport failure instead).
func classifyAPIError(err error) error {
	var apiErr *napi.Error
	if !errors.As(err, &apiErr) {
		return nil
	}

	status := int(apiErr.Status)

	wrapped := &Error{
		StatusCode: status,
		Code:       string(apiErr.Code),
		Message:    apiErr.Message,
		Err:        classifyStatus(status, apiErr.Code),
	}

	return wrapped
}

func classifyStatus(status int, code napi.ErrorCode) error {
	switch {
	case status == 400:
		return ErrBadRequest
	case status == 401:
		return ErrUnauthorized
	case status == 403:
		return ErrForbidden
	case status == 404:
		return ErrNotFound
	case status == 409:
		return ErrConflict
	case status == 429:
		return ErrThrottled
	case status >= 500:
		return ErrServerError
	case code == napi.ErrorCodeValidation:
		return ErrValidation
	default:
		return nil
	}
}

// isRetryable reports whether a classified sentinel should be retried:
// throttling and server-side failures, mirroring the teacher's isRetryable
// retry set (429/5xx) minus the HTTP-specific codes that do not apply to
// the remote store's JSON API.
func isRetryable(sentinel error) bool {
	return errors.Is(sentinel, ErrThrottled) || errors.Is(sentinel, ErrServerError)
}
