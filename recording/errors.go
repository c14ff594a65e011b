package recording

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the catalog row or its file is missing.
	ErrNotFound = errors.New("recording not found")
	// ErrRangeInvalid is matched by every *RangeError.
	ErrRangeInvalid = errors.New("invalid byte range")
)

// RangeError describes a rejected Range header.
type RangeError struct {
	Header string
	Size   int64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range %q for %d-byte file: %s", e.Header, e.Size, e.Reason)
}

func (e *RangeError) Is(target error) bool { return target == ErrRangeInvalid }
