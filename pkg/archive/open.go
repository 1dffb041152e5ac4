package archive

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFS  = "fs"
	BackendS3  = "s3"
	BackendGCS = "gcs"
)

// Config selects a backend.
type Config struct {
	Backend  string
	Dir      string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Open builds the Store named by cfg.Backend. An empty backend means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFS:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("archive: directory is required for the fs backend")
		}
		return NewFileStore(cfg.Dir)
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: bucket is required for the s3 backend")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case BackendGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: bucket is required for the gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("archive: unsupported backend %q (want fs, s3 or gcs)", cfg.Backend)
	}
}
