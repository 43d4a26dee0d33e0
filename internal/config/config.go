// Package config loads the YAML configuration recognised by the grz
// submission core: object-store connection details, Crypt4GH key paths, and
// the identifiers the validator cross-checks submissions against.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
)

// Default multipart chunk size per spec.md §4.5.
const DefaultMultipartChunkSize = 256 * 1024 * 1024

// S3Config describes the object-store endpoint and credentials.
type S3Config struct {
	EndpointURL                string `yaml:"endpoint_url"`
	Bucket                     string `yaml:"bucket"`
	AccessKey                  string `yaml:"access_key"`
	Secret                     string `yaml:"secret"`
	SessionToken               string `yaml:"session_token"`
	RegionName                 string `yaml:"region_name"`
	APIVersion                 string `yaml:"api_version"`
	UseSSL                     bool   `yaml:"use_ssl"`
	ProxyURL                   string `yaml:"proxy_url"`
	RequestChecksumCalculation string `yaml:"request_checksum_calculation"`
	MultipartChunksize         int64  `yaml:"multipart_chunksize"`
}

// KeysConfig describes the Crypt4GH key material locations. Exactly one of
// GRZPublicKey/GRZPublicKeyPath must be set.
type KeysConfig struct {
	GRZPublicKey          string `yaml:"grz_public_key"`
	GRZPublicKeyPath      string `yaml:"grz_public_key_path"`
	GRZPrivateKeyPath     string `yaml:"grz_private_key_path"`
	SubmitterPrivateKeyPath string `yaml:"submitter_private_key_path"`
}

// IdentifiersConfig carries the expected GDC/LE identifiers the validator
// cross-checks the submission metadata against (spec.md §4.3 phase 5).
type IdentifiersConfig struct {
	GRZ string `yaml:"grz"`
	LE  string `yaml:"le"`
}

// Config is the root configuration document.
type Config struct {
	S3          S3Config          `yaml:"s3"`
	Keys        KeysConfig        `yaml:"keys"`
	Identifiers IdentifiersConfig `yaml:"identifiers"`
}

// Unmarshal parses config bytes, applying defaults first, matching the
// teacher's config.Unmarshal shape (defaults-then-unmarshal-then-validate).
func Unmarshal(raw []byte) (*Config, error) {
	cfg := &Config{
		S3: S3Config{
			UseSSL:             true,
			MultipartChunksize: DefaultMultipartChunkSize,
		},
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, &grzerr.ConfigError{Msg: "invalid YAML", Cause: err}
	}
	if cfg.S3.MultipartChunksize <= 0 {
		cfg.S3.MultipartChunksize = DefaultMultipartChunkSize
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML config file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, &grzerr.ConfigError{Msg: fmt.Sprintf("failed to load %s", filename), Cause: err}
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	hasInline := c.Keys.GRZPublicKey != ""
	hasPath := c.Keys.GRZPublicKeyPath != ""
	if hasInline && hasPath {
		return &grzerr.ConfigError{Msg: "exactly one of keys.grz_public_key or keys.grz_public_key_path must be set, got both"}
	}
	if !hasInline && !hasPath {
		return &grzerr.ConfigError{Msg: "exactly one of keys.grz_public_key or keys.grz_public_key_path must be set, got neither"}
	}
	if c.S3.Bucket != "" && c.S3.EndpointURL == "" {
		return &grzerr.ConfigError{Msg: "s3.bucket set without s3.endpoint_url"}
	}
	return nil
}

// ResolveCredentials fills in AWS credential fields from the environment
// when the config does not supply them, per spec.md §6 environment
// variables.
func (c *S3Config) ResolveCredentials() (accessKey, secret string) {
	accessKey, secret = c.AccessKey, c.Secret
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secret == "" {
		secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	return accessKey, secret
}
