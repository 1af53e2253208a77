package storage

import (
	"strings"

	"github.com/timmy/emosense/internal/config"
)

// NewStorage creates an ObjectStorage instance from the storage section of the service config.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
//
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	s3cfg := &S3Config{
		Type:      StorageType(cfg.Type),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	}
	if s3cfg.Type == "" {
		s3cfg.Type = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(s3cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
