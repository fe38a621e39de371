// Package blobstore provides the storage abstraction behind trisum checkpoints.
//
// A BlobStore holds immutable, named blobs. Checkpoints are written once with
// Create and read back whole; small pointer blobs (e.g. "LATEST-index") are
// replaced atomically with Put. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system (atomic rename on close)
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3, with s3.DDBCommitStore for DynamoDB-committed pointers
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
