// Package checkpoint stores variable values in the .lchk binary format.
//
// File layout:
//
//	0x00  magic "LCHK"
//	0x04  format version (uint32, little endian)
//	0x08  flags (uint32)
//	0x0C  reserved
//	0x10  header size (uint64)
//	0x18  data size (uint64)
//	0x20  SHA-256 of the data section (32 bytes)
//	0x40  JSON header, padded to a 64-byte boundary
//	....  tensor data, concatenated in header order
//
// The JSON header lists every tensor by name, dtype, shape, offset and
// size. Element encoding follows tensor.Array.Bytes.
//
// Checkpoints are written to and read from a Store keyed by name. FileStore
// keeps them in a local directory; GCSStore keeps them in a Cloud Storage
// bucket.
package checkpoint
