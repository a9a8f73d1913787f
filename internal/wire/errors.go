package wire

import (
	"errors"
	"fmt"
)

// Field limits. A record that exceeds any of them cannot be encoded.
const (
	MaxNameLen   = 1<<16 - 1
	MaxDataLen   = 4 << 20
	MaxItems     = 1<<16 - 1
	MaxReadings  = 1<<16 - 1
	MaxInstance  = 64
	MaxEditBytes = MaxDataLen
)

var (
	ErrFieldTooLarge      = errors.New("wire: field too large")
	ErrCollectionTooLarge = errors.New("wire: collection count exceeds limit")
	ErrVarintOverflow     = errors.New("wire: varint overflow")
	ErrFrameTooLarge      = errors.New("wire: frame payload too large")
	ErrUnknownRecord      = errors.New("wire: unknown record type")
	ErrTrailingBytes      = errors.New("wire: trailing bytes after record")
	ErrInvalidPayload     = errors.New("wire: invalid library item payload")
	ErrUnknownItemType    = errors.New("wire: unknown library item type")
)

// FieldError describes a single field that exceeded its limit.
type FieldError struct {
	Field string
	Len   int
	Max   int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("wire: %s is %d bytes, limit is %d", e.Field, e.Len, e.Max)
}

func (e *FieldError) Unwrap() error {
	return ErrFieldTooLarge
}

func checkLen(field string, n, max int) error {
	if n > max {
		return &FieldError{Field: field, Len: n, Max: max}
	}
	return nil
}
