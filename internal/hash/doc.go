// Package hash provides CRC32-Castagnoli (CRC32C) checksums.
//
// CRC32C protects checkpoint headers and payloads, and is the checksum S3
// validates on single-shot uploads. Go's hash/crc32 uses SSE4.2 or the ARM
// CRC extension when available.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
