package s3

import (
	"fmt"
	"strings"
	"time"

	"github.com/observefs/observefs/internal/circuit"
)

// Config represents S3 backend configuration
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	CircuitBreaker circuit.Config `yaml:"circuit_breaker"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		CircuitBreaker: circuit.DefaultConfig(),
	}
}

// HasStaticCredentials reports whether an access key pair is configured.
func (c *Config) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

var uriSchemes = []string{"s3://", "s3a://"}

// IsURI reports whether path uses one of the S3 URI schemes.
func IsURI(path string) bool {
	for _, scheme := range uriSchemes {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}

// ParseURI splits s3://bucket/key into its bucket and key. The key may be
// empty; the bucket may not.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	_, rest, _ := strings.Cut(uri, "://")

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, key, nil
}

// FormatURI is the inverse of ParseURI.
func FormatURI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
