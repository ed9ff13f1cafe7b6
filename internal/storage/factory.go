package storage

import (
	"path"
	"strings"

	"github.com/timmy/linkwatch/internal/config"
)

// New creates the archive described by cfg.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, bucket and key prefix.
//
// Returns:
//   - Archive: initialized archive.
//   - error: ErrDisabled when storage is not enabled, otherwise non-nil if the client cannot be created.
func New(cfg config.StorageConfig) (Archive, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	storeType := StorageType(cfg.Type)
	if storeType == "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

// ObjectKey joins key segments below prefix, skipping empty ones.
func ObjectKey(prefix string, parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	for _, p := range append([]string{prefix}, parts...) {
		p = strings.Trim(p, "/")
		if p != "" {
			segments = append(segments, p)
		}
	}
	return path.Join(segments...)
}

// detectStorageType guesses the flavour of S3 from the endpoint.
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
