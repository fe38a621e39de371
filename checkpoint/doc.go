// Package checkpoint persists pair indexes and difference sets so a later run
// can skip the build phase.
//
// A checkpoint is a single immutable blob on a blobstore.BlobStore:
//
//	header   magic "TSCK", version, kind, compression, columns,
//	         input fingerprint, creation time, label, sizes, CRC32C
//	payload  the encoded structure, optionally LZ4 or zstd compressed
//
// The header and payload carry separate CRC32C checksums. The input
// fingerprint (see row.Fingerprint) ties a checkpoint to the exact rows and
// target it was built from. IndexOrBuild and DiffsOrBuild refuse checkpoints
// whose fingerprint differs and rebuild instead.
//
// # Usage
//
//	store := checkpoint.NewStore(blobstore.NewLocalStore("ckpt"), func(o *checkpoint.Options) {
//	    o.Compression = checkpoint.CompressionLZ4
//	    o.Logger = logger
//	})
//
//	h, err := store.SaveIndex(ctx, ix, checkpoint.Meta{Columns: 2, Fingerprint: fp})
//
//	ix, resumed, err := store.IndexOrBuild(ctx, checkpoint.LatestName, want, build)
package checkpoint
