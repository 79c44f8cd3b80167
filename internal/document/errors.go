package document

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorization means the caller has no established identity or lacks
	// the privilege for the operation. Never retried automatically.
	ErrAuthorization = errors.New("authorization error")
	// ErrReadOnly is returned for writes by a read or comment collaborator.
	ErrReadOnly = fmt.Errorf("%w: role does not permit writes", ErrAuthorization)
	// ErrNotFound covers both absent and unauthorized documents.
	ErrNotFound = errors.New("document not found")
	// ErrRemoteUnavailable is transient; cached state stays usable.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrIntegrityViolation flags corrupted records and must never be swallowed.
	ErrIntegrityViolation = errors.New("document integrity violation")
	// ErrInvalidDocument rejects records that fail validation at a boundary.
	ErrInvalidDocument = errors.New("invalid document")
)
