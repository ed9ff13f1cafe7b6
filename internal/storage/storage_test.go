package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/config"
)

func TestNewDisabled(t *testing.T) {
	_, err := New(config.StorageConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewS3Storage(t *testing.T) {
	archive, err := New(config.StorageConfig{
		Enabled:   true,
		Endpoint:  "https://minio.internal:9000/ignored/path",
		AccessKey: "key",
		SecretKey: "secret",
		UseSSL:    true,
		Bucket:    "linkwatch",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://minio.internal:9000/linkwatch/exports/a.csv", archive.URL("exports/a.csv"))

	s3s, ok := archive.(*S3Storage)
	require.True(t, ok)
	assert.Equal(t, StorageTypeS3Compatible, s3s.storeType)
}

func TestNewS3StoragePublicURL(t *testing.T) {
	archive, err := NewS3Storage(&S3Config{
		Type:      StorageTypeR2,
		Endpoint:  "acct.r2.cloudflarestorage.com",
		Bucket:    "linkwatch",
		PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/exports/a.csv", archive.URL("exports/a.csv"))
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(&S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://x.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "exports/instagram/nasa.csv", ObjectKey("/exports/", "instagram", "", "nasa.csv"))
	assert.Equal(t, "nasa.csv", ObjectKey("", "nasa.csv"))
}
