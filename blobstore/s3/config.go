package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the New convenience constructor.
type Options struct {
	// Prefix is prepended to all keys.
	Prefix string

	// UploadPartSize is the multipart part size in bytes. Snapshots of a
	// few hundred MB benefit from parts larger than the SDK's 5MB default.
	UploadPartSize int64

	// UploadConcurrency is the number of parts uploaded in parallel.
	UploadConcurrency int
}

// DefaultOptions returns the default constructor configuration.
func DefaultOptions() Options {
	return Options{
		UploadPartSize:    8 * 1024 * 1024,
		UploadConcurrency: 5,
	}
}

// New creates a Store from the ambient AWS configuration (environment,
// shared config, instance role). Large blobs upload multipart.
func New(ctx context.Context, bucket string, optFns ...func(*Options)) (*Store, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)

	store := NewStore(client, bucket, opts.Prefix)
	store.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = opts.UploadPartSize
		u.Concurrency = opts.UploadConcurrency
	})
	return store, nil
}

// WithPrefix sets the key prefix for New.
func WithPrefix(prefix string) func(*Options) {
	return func(o *Options) { o.Prefix = prefix }
}
