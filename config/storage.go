package config

import (
	"errors"
	"fmt"
)

const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"
	StorageTypeGCS   = "gcs"
)

// StorageConfig 对象存储配置. Type selects where uploads are written;
// every configured backend can still be read from.
type StorageConfig struct {
	Type  string      `yaml:"type"`
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
	Minio MinioConfig `yaml:"minio"`
	GCS   GCSConfig   `yaml:"gcs"`
}

// LocalConfig writes uploads below pipeline.legacyRoot so the stored
// reference resolves as a legacy path.
type LocalConfig struct {
	Prefix string `yaml:"prefix"`
}

func (c *StorageConfig) applyEnv() error {
	setString(&c.Type, "STORAGE_TYPE")
	setString(&c.Local.Prefix, "UPLOAD_PREFIX")
	c.S3.applyEnv()
	c.Minio.applyEnv()
	c.GCS.applyEnv()
	return nil
}

func (c *StorageConfig) validate() error {
	var errs []error
	switch c.Type {
	case StorageTypeLocal:
		if c.Local.Prefix == "" {
			errs = append(errs, errors.New("storage.local.prefix is required"))
		}
	case StorageTypeS3:
		if !c.S3.Enabled() {
			errs = append(errs, errors.New("storage.s3 requires bucketName and region"))
		}
	case StorageTypeMinio:
		if !c.Minio.Enabled() {
			errs = append(errs, errors.New("storage.minio requires endpoint and bucketName"))
		}
	case StorageTypeGCS:
		if !c.GCS.Enabled() {
			errs = append(errs, errors.New("storage.gcs requires bucketName"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type: %q", c.Type))
	}
	return errors.Join(errs...)
}
