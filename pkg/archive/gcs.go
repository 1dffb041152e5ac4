package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore uses Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	name, _ := objectName(s.prefix, ref)
	obj := s.client.Bucket(s.bucket).Object(name)

	if _, err := obj.Attrs(ctx); err == nil {
		return ref, nil
	}

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", name, err)
	}
	return ref, nil
}

func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	name, err := objectName(s.prefix, ref)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get %s: %w", name, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Close releases the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
