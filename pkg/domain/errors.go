package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is.
var (
	ErrIllegalArgument = errors.New("illegal argument")
	ErrIllegalState    = errors.New("illegal state")
	ErrNotFound        = errors.New("not found")

	// ErrWrongThread is returned when a connection is used from a goroutine other than its owner.
	ErrWrongThread = fmt.Errorf("%w: accessed from incorrect goroutine", ErrIllegalState)
	// ErrConnectionClosed is returned by every store or connection call after Close.
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrIllegalState)
	// ErrInvalidCollection is returned by collection calls after the collection was invalidated.
	ErrInvalidCollection = fmt.Errorf("%w: collection is no longer valid", ErrIllegalState)
	// ErrNotInWrite is returned when a mutation is attempted outside a write scope.
	ErrNotInWrite = fmt.Errorf("%w: not in a write transaction", ErrIllegalState)
	// ErrAlreadyInWrite is returned when a write scope is opened twice on one connection.
	ErrAlreadyInWrite = fmt.Errorf("%w: write transaction already in progress", ErrIllegalState)

	// ErrUnsupportedFieldType is returned by numeric aggregates on non-numeric fields.
	ErrUnsupportedFieldType = fmt.Errorf("%w: unsupported field type", ErrIllegalArgument)
	// ErrFieldTypeMismatch is returned by date aggregates on non-date fields.
	ErrFieldTypeMismatch = fmt.Errorf("%w: field type mismatch", ErrIllegalArgument)
	// ErrUnknownField is returned when a field name does not resolve in the schema.
	ErrUnknownField = fmt.Errorf("%w: unknown field", ErrIllegalArgument)
	// ErrUnknownTable is returned when a table name does not resolve in the schema.
	ErrUnknownTable = fmt.Errorf("%w: unknown table", ErrIllegalArgument)
)
