// Package objectstore implements the Object Store component (spec §4.1): a
// content-addressed blob layer that transparently chooses single-PUT vs.
// multipart upload and cleans up partial uploads on failure.
package objectstore

import (
	"time"

	"github.com/tsio/tsio/internal/config"
)

const (
	// multipartThreshold is the boundary above which Put splits a payload into
	// 5 MiB parts instead of issuing a single PUT (spec §4.1).
	multipartThreshold = 5 * 1024 * 1024
	partSize           = 5 * 1024 * 1024

	defaultPresignTTL = 15 * time.Minute

	devDefaultAccessKey = "minioadmin"
	devDefaultSecretKey = "minioadmin"
)

// Config holds the S3/MinIO connection surface (spec §6's TSIO_S3_* vars).
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// LoadConfig reads TSIO_S3_* environment variables, falling back to the MinIO
// development defaults.
func LoadConfig() *Config {
	return &Config{
		Endpoint:  config.GetEnvStr("TSIO_S3_ENDPOINT", "localhost:9000"),
		Bucket:    config.GetEnvStr("TSIO_S3_BUCKET", "tsio-artifacts"),
		Region:    config.GetEnvStr("TSIO_S3_REGION", "us-east-1"),
		AccessKey: config.GetEnvStr("TSIO_S3_ACCESS_KEY", devDefaultAccessKey),
		SecretKey: config.GetEnvStr("TSIO_S3_SECRET_KEY", devDefaultSecretKey),
		UseSSL:    config.GetEnvStr("TSIO_S3_USE_SSL", "false") == "true",
	}
}

// IsDevDefault reports whether the configured credentials equal the checked-in
// MinIO development defaults. Production startup refuses to boot against this
// (spec §6).
func (c *Config) IsDevDefault() bool {
	return c.AccessKey == devDefaultAccessKey && c.SecretKey == devDefaultSecretKey
}
