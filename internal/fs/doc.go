// Package fs provides the file system abstraction behind the local blob
// store, plus a fault-injecting wrapper for tests.
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("index-", fs.Fault{FailAfterBytes: 1024})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// Operations take no context: local file system calls are not interruptible
// at the syscall level. Blob-level context handling lives in blobstore.
package fs
