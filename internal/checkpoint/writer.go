package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// WriteOptions carries the optional header fields of a checkpoint.
type WriteOptions struct {
	Backend  string            // engine that produced the values
	Metadata map[string]string // free-form, e.g. training step
}

// Write encodes tensors as a checkpoint. Tensors are stored in name order,
// so equal inputs produce equal data sections.
func Write(w io.Writer, tensors map[string]*tensor.Array, opts WriteOptions) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if tensors[name] == nil {
			return errors.Errorf("tensor %q is nil", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersion,
		Version:       config.Version,
		Backend:       opts.Backend,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(names)),
		Metadata:      opts.Metadata,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var data []byte
	for _, name := range names {
		a := tensors[name]
		b := a.Bytes()
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  a.DType().String(),
			Shape:  []int(a.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   int64(len(b)),
		})
		data = append(data, b...)
	}
	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	var flags uint32
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return errors.Wrap(err, "failed to write fixed header")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	if pad := padding(int64(FixedHeaderSize) + int64(len(headerJSON))); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return errors.Wrap(err, "failed to write padding")
		}
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write tensor data")
	}
	return nil
}
