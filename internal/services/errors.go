package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrSizeExceeded  = errors.New("size limit exceeded")
	ErrSecurity      = errors.New("security violation")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Details returns the failure classification and the human-readable message
// stored on a record when the error ends a job.
func Details(err error) (kind string, message string) {
	if err == nil {
		return "", ""
	}
	switch {
	case errors.Is(err, ErrSizeExceeded):
		kind = "size-exceeded"
	case errors.Is(err, ErrSecurity):
		kind = "security"
	case errors.Is(err, ErrNotFound):
		kind = "not-found"
	case errors.Is(err, ErrValidation):
		kind = "validation"
	case errors.Is(err, ErrConfiguration):
		kind = "configuration"
	case errors.Is(err, ErrExternalTool):
		kind = "external-tool"
	default:
		kind = "transient"
	}
	return kind, strings.TrimSpace(err.Error())
}

// IsRetryable reports whether a failure may succeed when attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrSizeExceeded) && !errors.Is(err, ErrSecurity)
}

// HTTPStatusMarker maps a remote HTTP status code to the sentinel used to
// classify it.
func HTTPStatusMarker(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrSecurity
	case status == 404:
		return ErrNotFound
	case status == 413:
		return ErrSizeExceeded
	case status == 400 || status == 422:
		return ErrValidation
	default:
		return ErrTransient
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
