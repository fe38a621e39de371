// Package minio provides a BlobStore backed by MinIO or any S3-compatible
// object store (Ceph, SeaweedFS, Garage) through the MinIO Go client.
//
//	client, err := minio.NewClient(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	})
//	if err != nil {
//	    return err
//	}
//	store := minio.NewStore(client, "trisum", "checkpoints/")
//	ckpt := checkpoint.NewStore(store)
//
// Unlike package s3 this backend carries no AWS SDK dependency, which suits
// air-gapped clusters.
package minio
