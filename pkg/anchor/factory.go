package anchor

import (
	"context"
	"fmt"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Backend  Backend `yaml:"backend" json:"backend"`
	Dir      string  `yaml:"dir" json:"dir"`
	Bucket   string  `yaml:"bucket" json:"bucket"`
	Region   string  `yaml:"region" json:"region"`
	Endpoint string  `yaml:"endpoint" json:"endpoint"`
	Prefix   string  `yaml:"prefix" json:"prefix"`
}

// NewStore builds the configured backend. An empty backend means "fs".
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", BackendFS:
		dir := cfg.Dir
		if dir == "" {
			dir = "data/documents"
		}
		return NewFileStore(dir)
	case BackendS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case BackendGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported document store backend: %s", cfg.Backend)
	}
}
