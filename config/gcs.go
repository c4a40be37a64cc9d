package config

type GCSConfig struct {
	BucketName      string `yaml:"bucketName"`
	CredentialsFile string `yaml:"credentialsFile"`
}

func (c *GCSConfig) applyEnv() {
	setString(&c.BucketName, "GCS_BUCKET_NAME")
	setString(&c.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
}

func (c GCSConfig) Enabled() bool {
	return c.BucketName != ""
}
