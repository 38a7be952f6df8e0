package remote

import (
	"context"
	"fmt"

	"drivesync/internal/config"
	"drivesync/internal/sync"
)

// NewRemoteFromConfig creates a RemoteStore implementation based on the remote config type.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig) (sync.RemoteStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRemote(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
		}
		return NewS3Remote(ctx, cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "filesystem":
		if cfg.FSRemoteRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_remote_root to be set")
		}
		return NewFileSystemRemote(cfg.Name, cfg.FSRemoteRoot)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
