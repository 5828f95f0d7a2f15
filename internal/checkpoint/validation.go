package checkpoint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// Validation limits.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
	// DefaultMaxDataSize bounds the data section unless
	// ReaderOptions.MaxDataSize says otherwise.
	DefaultMaxDataSize = 16 << 30
)

// ValidateTensorOffsets checks that tensors lie inside a data section of
// dataSize bytes and do not overlap.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Kind:    KindTooManyTensors,
			Details: fmt.Sprintf("%d tensors listed, at most %d allowed", len(tensors), MaxTensorCount),
		}
	}
	if dataSize < 0 {
		return &ValidationError{Kind: KindDataTooLarge, Details: "data section size overflows int64"}
	}

	byOffset := make([]TensorMeta, len(tensors))
	copy(byOffset, tensors)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })

	for i, t := range byOffset {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Kind:    KindNegativeOffset,
				Tensors: []string{t.Name},
				Details: fmt.Sprintf("offset %d and size %d must not be negative", t.Offset, t.Size),
			}
		}
		// Written as a subtraction so huge offsets cannot wrap around.
		if t.Size > dataSize || t.Offset > dataSize-t.Size {
			return &ValidationError{
				Kind:    KindOutOfBounds,
				Tensors: []string{t.Name},
				Details: fmt.Sprintf("%d bytes at offset %d do not fit a %d byte data section", t.Size, t.Offset, dataSize),
			}
		}
		if i+1 < len(byOffset) {
			next := byOffset[i+1]
			if next.Offset-t.Offset < t.Size {
				return &ValidationError{
					Kind:    KindOverlap,
					Tensors: []string{t.Name, next.Name},
					Details: fmt.Sprintf("bytes [%d, %d) and [%d, %d) overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// ValidateTensorName checks a variable name. Scope separators are allowed,
// but not empty segments, "." or ".." segments, backslashes or null bytes.
func ValidateTensorName(name string) error {
	invalid := func(details string) error {
		return &ValidationError{Kind: KindInvalidName, Tensors: []string{name}, Details: details}
	}
	switch {
	case name == "":
		return invalid("name is empty")
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Kind:    KindNameTooLong,
			Tensors: []string{name[:32] + "..."},
			Details: fmt.Sprintf("name has %d bytes, at most %d allowed", len(name), MaxTensorNameLen),
		}
	case strings.ContainsAny(name, "\\\x00"):
		return invalid("name contains a backslash or null byte")
	}
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "":
			return invalid("name has an empty scope segment")
		case ".", "..":
			return invalid(fmt.Sprintf("name has a %q segment", seg))
		}
	}
	return nil
}

// ValidateHeader checks tensor names, dtypes, sizes and offsets against a
// data section of dataSize bytes.
func ValidateHeader(h *Header, dataSize int64) error {
	seen := make(map[string]bool, len(h.Tensors))
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return &ValidationError{Kind: KindDuplicateName, Tensors: []string{t.Name}, Details: "tensor is listed twice"}
		}
		seen[t.Name] = true

		dtype, err := tensor.ParseDataType(t.DType)
		if err != nil {
			return &ValidationError{Kind: KindInvalidDType, Tensors: []string{t.Name}, Details: err.Error()}
		}
		shape := tensor.Shape(t.Shape)
		if err := shape.Validate(); err != nil {
			return &ValidationError{Kind: KindInvalidShape, Tensors: []string{t.Name}, Details: err.Error()}
		}
		want, ok := byteSize(shape, int64(dtype.Size()), dataSize)
		if !ok || t.Size != want {
			return &ValidationError{
				Kind:    KindSizeMismatch,
				Tensors: []string{t.Name},
				Details: fmt.Sprintf("%d bytes stored for %s%v", t.Size, t.DType, t.Shape),
			}
		}
	}
	return ValidateTensorOffsets(h.Tensors, dataSize)
}

// byteSize returns the bytes a tensor of shape needs, or false when that
// exceeds limit.
func byteSize(shape tensor.Shape, elemSize, limit int64) (int64, bool) {
	for _, d := range shape {
		if d == 0 {
			return 0, true
		}
	}
	n := elemSize
	for _, d := range shape {
		if n > limit/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, n <= limit
}
