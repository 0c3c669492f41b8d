package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/logger"
)

// ProvideBlobStore provides image storage, on the local filesystem or in an S3 bucket.
func ProvideBlobStore(i do.Injector) (blob.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Media.Backend == config.MediaS3 {
		s3cfg := cfg.Media.S3
		store, err := blob.NewS3Store(context.Background(), blob.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			PublicURL: s3cfg.PublicURL,
			Prefix:    s3cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Image storage ready", "backend", config.MediaS3, "bucket", s3cfg.Bucket, "region", s3cfg.Region)
		return store, nil
	}

	store, err := blob.NewFileStore(cfg.Storage.MediaPath, cfg.Server.MediaBaseURL())
	if err != nil {
		return nil, err
	}
	log.Info("Image storage ready", "backend", config.MediaLocal, "path", store.Root(), "base_url", cfg.Server.MediaBaseURL())
	return store, nil
}
