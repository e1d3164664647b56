// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "disks/")
//	dev, err := device.OpenBlob(ctx, store, "disk0", 1024)
//
// # Features
//
//   - Range reads for block-sized fetches
//   - CRC32C-checksummed puts, multipart uploads for large blobs
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
