// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "checkpoints/")
//	ckpt := checkpoint.NewStore(store)
//
// # Atomic pointers
//
// S3 has no compare-and-swap, so concurrent runs sharing a prefix could race
// on the "LATEST-<kind>" pointer blobs. DDBCommitStore wraps a Store and
// commits pointer updates through DynamoDB conditional writes instead.
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large checkpoints
//   - CRC32C integrity validation on single-shot puts
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
