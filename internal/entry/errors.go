package entry

import (
	"errors"
	"fmt"

	"github.com/systmms/secretproxy/pkg/backend"
)

// ValidationError reports a rejected request parameter. Blank input is
// rejected before the cache or backend is touched; a key the backend
// cannot address is rejected by the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports that the backend holds no value for Key.
type NotFoundError struct {
	Key     string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Entry not found: key = %s", e.Key)
}

// BackendError wraps a backend failure other than absence.
type BackendError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend failed to %s entry: key = %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsBackend reports whether err is or wraps a *BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func blankKey() error {
	return &ValidationError{Field: "key", Message: "Key cannot be blank"}
}

func blankValue() error {
	return &ValidationError{Field: "value", Message: "Value cannot be blank"}
}

func notFound(key string) error {
	return &NotFoundError{Key: key, Message: fmt.Sprintf("Entry not found: key = %s", key)}
}

func invalidKey(err *backend.InvalidKeyError) error {
	return &ValidationError{Field: "key", Message: fmt.Sprintf("Key is not valid for %s: %s", err.Backend, err.Reason)}
}
