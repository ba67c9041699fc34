//go:build gcp

package anchor

import "context"

func newGCSStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
