package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound              = errors.New("document not found")
	ErrShardUnavailable              = errors.New("shard unavailable")
	ErrIncompatibleShardCapabilities = errors.New("incompatible shard capabilities")
	ErrOutOfRange                    = errors.New("id out of range")
	ErrUnknownKey                    = errors.New("unknown metadata key")
	ErrInvalidInput                  = errors.New("invalid input")
	ErrInternal                      = errors.New("internal error")
	ErrTimeout                       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// OutOfRange reports an id outside [0, limit).
func OutOfRange(what string, id, limit int) *AppError {
	return Newf(ErrOutOfRange, http.StatusBadRequest, "%s %d outside [0, %d)", what, id, limit)
}

// UnknownKey reports a metadata key missing from the shared schema.
func UnknownKey(key string) *AppError {
	return Newf(ErrUnknownKey, http.StatusNotFound, "metadata key %q is not configured", key)
}

// Incompatible reports a feature the shard set cannot serve uniformly.
func Incompatible(format string, args ...any) *AppError {
	return Newf(ErrIncompatibleShardCapabilities, http.StatusUnprocessableEntity, format, args...)
}

// ShardUnavailable wraps the cause of a shard failing to open.
func ShardUnavailable(shard string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrShardUnavailable, shard, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrIncompatibleShardCapabilities):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
