package checkpoint

import "time"

// Format constants.
const (
	MagicBytes      = "LCHK"
	FormatVersion   = 1
	FixedHeaderSize = 64   // 0x40 bytes
	HeaderAlignment = 64   // tensor data starts on a 64-byte boundary
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // checksum position in the fixed header
)

// Flags.
const (
	FlagHasMetadata uint32 = 1 << 0
)

// Header is the JSON header of a checkpoint.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Version       string            `json:"luchador_version"`
	Backend       string            `json:"backend,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
}

// TensorMeta describes one tensor of the data section.
type TensorMeta struct {
	Name   string `json:"name"` // fully qualified variable name, e.g. "pre_trans/fc1/weight"
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // from the start of the data section
	Size   int64  `json:"size"`   // in bytes
}

// dataOffset returns where the data section starts for a JSON header of
// headerSize bytes.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + padding(pos)
}

func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
