package resources

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
var (
	// ErrValidation is matched by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a blob, tree or proxy target does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidTree indicates the submitted root is missing or not a folder
	ErrInvalidTree = errors.New("root folder required")

	// ErrMissingField indicates a required request field was absent
	ErrMissingField = errors.New("missing field")

	// ErrUnsupportedMediaType indicates the declared media type is not allow-listed
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrPayloadTooLarge indicates an upload exceeded its class limit
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidURL indicates a proxy target that is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid url")

	// ErrHostNotAllowed indicates a proxy target outside the durable-store hosts
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrStoreNotConfigured indicates no durable backend was set up
	ErrStoreNotConfigured = errors.New("durable store not configured")
)

// ValidationError is a 400-class error whose message is surfaced verbatim.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field string, cause error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: cause}
}

// UpstreamError carries the status of a failed durable-store interaction.
// The status is propagated to clients unchanged.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("upstream %s failed with status %d: %s", e.Op, e.StatusCode, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to durable store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps an error from this package onto a response status.
func HTTPStatus(err error) int {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		if upstream.StatusCode >= 400 {
			return upstream.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
