package core

import (
	"errors"
	"fmt"
)

// Transport errors, surfaced by Facade implementations.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransport         = errors.New("transport failure")
	ErrReadOnly          = errors.New("facade is in read-only mode")
	ErrUnsupported       = errors.New("operation not supported by facade")
)

// Binding and UDF errors.
var (
	ErrMissingElement   = errors.New("element not present in document")
	ErrTypeMismatch     = errors.New("value does not match field type")
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrMalformedData    = errors.New("malformed data in document")
	ErrKeyNotFound      = errors.New("key not found")
	ErrNoIdentifier     = errors.New("neither id nor uri given")
	ErrUnknownField     = errors.New("unknown field")
	ErrReadOnlyField    = errors.New("field is read-only")
	ErrNotTyped         = errors.New("dictionary has no type wrapper")
	ErrTypeLocked       = errors.New("type cannot change once fields exist")
	ErrStaleView        = errors.New("view outlived its document")
	ErrUnknownNamespace = errors.New("unknown namespace prefix")
)

// FieldError reports a failure to read or write a single field of an entity.
type FieldError struct {
	Kind  string
	ID    string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s: field %q: %v", e.Kind, e.ID, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
