package checkpoint

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: checkpoint may be corrupted")
	ErrTruncated          = errors.New("checkpoint is truncated")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

// Kinds of ValidationError.
const (
	KindTooManyTensors = "too_many_tensors"
	KindDataTooLarge   = "data_too_large"
	KindNegativeOffset = "negative_offset"
	KindOutOfBounds    = "out_of_bounds"
	KindOverlap        = "offset_overlap"
	KindInvalidName    = "invalid_name"
	KindNameTooLong    = "name_too_long"
	KindDuplicateName  = "duplicate_name"
	KindInvalidDType   = "invalid_dtype"
	KindInvalidShape   = "invalid_shape"
	KindSizeMismatch   = "size_mismatch"
)

// ValidationError reports an LCHK header, tensor name or store key that
// cannot be accepted.
type ValidationError struct {
	Kind    string
	Key     string   // store key, set when the checkpoint came from a Store
	Tensors []string // tensors involved, if any
	Details string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid checkpoint")
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	switch len(e.Tensors) {
	case 0:
	case 1:
		fmt.Fprintf(&b, ", tensor %q", e.Tensors[0])
	default:
		fmt.Fprintf(&b, ", tensors %q", e.Tensors)
	}
	fmt.Fprintf(&b, ": %s [%s]", e.Details, e.Kind)
	return b.String()
}
