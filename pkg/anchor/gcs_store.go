//go:build gcp

package anchor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore keeps documents in a Google Cloud Storage bucket keyed by digest.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(cid string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + strings.TrimPrefix(cid, cidPrefix) + ".blob")
}

func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	cid := ContentID(data)
	obj := s.object(cid)
	if _, err := obj.Attrs(ctx); err == nil {
		return cid, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return cid, nil
}

func (s *GCSStore) Get(ctx context.Context, cid string) ([]byte, error) {
	if _, err := parseCID(cid); err != nil {
		return nil, err
	}
	reader, err := s.object(cid).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", cid, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func (s *GCSStore) Exists(ctx context.Context, cid string) (bool, error) {
	if _, err := parseCID(cid); err != nil {
		return false, err
	}
	_, err := s.object(cid).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
