package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool // faster but less safe
	// MaxDataSize bounds the data section in bytes. Zero means
	// DefaultMaxDataSize.
	MaxDataSize int64
}

// Checkpoint is a decoded checkpoint.
type Checkpoint struct {
	Header  Header
	Tensors map[string]*tensor.Array
}

// Names returns the tensor names in storage order.
func (c *Checkpoint) Names() []string {
	names := make([]string, len(c.Header.Tensors))
	for i, t := range c.Header.Tensors {
		names[i] = t.Name
	}
	return names
}

// Read decodes a checkpoint with checksum validation.
func Read(r io.Reader) (*Checkpoint, error) {
	return ReadWithOptions(r, ReaderOptions{})
}

// ReadWithOptions decodes a checkpoint from a stream. The stream is read
// once, front to back.
func ReadWithOptions(r io.Reader, opts ReaderOptions) (*Checkpoint, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, truncated(err, "fixed header")
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, errors.Wrapf(ErrInvalidMagic, "got %q", fixed[0:4])
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", version, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	rawDataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	maxData := opts.MaxDataSize
	if maxData <= 0 {
		maxData = DefaultMaxDataSize
	}
	if rawDataSize > uint64(maxData) {
		return nil, &ValidationError{
			Kind:    KindDataTooLarge,
			Details: fmt.Sprintf("data section of %d bytes exceeds the %d byte limit", rawDataSize, maxData),
		}
	}
	dataSize := int64(rawDataSize)
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, truncated(err, "header")
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.Wrap(err, "failed to parse header")
	}

	// Padding sits between the header and the data section.
	pad := dataOffset(int64(headerSize)) - int64(FixedHeaderSize) - int64(headerSize)
	if _, err := io.CopyN(io.Discard, r, pad); err != nil {
		return nil, truncated(err, "padding")
	}
	if err := ValidateHeader(&header, dataSize); err != nil {
		return nil, err
	}

	// Grow with what the stream delivers rather than trusting the header.
	data, err := io.ReadAll(io.LimitReader(r, dataSize))
	if err != nil {
		return nil, truncated(err, "tensor data")
	}
	if int64(len(data)) < dataSize {
		return nil, errors.Wrapf(ErrTruncated, "reading tensor data: got %d of %d bytes", len(data), dataSize)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, err
		}
	}

	c := &Checkpoint{Header: header, Tensors: make(map[string]*tensor.Array, len(header.Tensors))}
	for _, t := range header.Tensors {
		dtype, err := tensor.ParseDataType(t.DType)
		if err != nil {
			return nil, err
		}
		a, err := tensor.FromBytes(data[t.Offset:t.Offset+t.Size], tensor.Shape(t.Shape), dtype)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", t.Name)
		}
		c.Tensors[t.Name] = a
	}
	return c, nil
}

func truncated(err error, section string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrTruncated, "reading %s", section)
	}
	return errors.Wrapf(err, "reading %s", section)
}
