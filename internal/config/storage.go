package config

import "time"

// StorageConfig points the object storage client at an S3-compatible
// backend (AWS S3 or MinIO).  PublicBaseURL, when set, is used to build the
// URL returned for an uploaded object; otherwise the endpoint and bucket are
// combined path-style.
type StorageConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	Folder        string
	Timeout       time.Duration
}

// LoadStorageConfig reads the S3_* variables.  Defaults target a local MinIO.
func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		Endpoint:      envStr("S3_ENDPOINT", "http://127.0.0.1:9000"),
		Region:        envStr("S3_REGION", "us-east-1"),
		Bucket:        envStr("S3_BUCKET", "uploaded-files"),
		AccessKey:     envStr("S3_ACCESS_KEY", "minioadmin"),
		SecretKey:     envStr("S3_SECRET_KEY", "minioadmin"),
		PublicBaseURL: envStr("S3_PUBLIC_BASE_URL", ""),
		Folder:        envStr("S3_FOLDER", "uploaded_files"),
		Timeout:       envDur("STORAGE_TIMEOUT", 20*time.Second),
	}
}
