package dynacache

import (
	"fmt"

	"github.com/rzpsarthak13/dynacache/internal/core"
)

// Default attribute names for the cache table.
const (
	DefaultKeyColumn   = "cache_key"
	DefaultValueColumn = "cache_value"
	DefaultTTLColumn   = "ttl"
	DefaultRefColumn   = "s3_bucket"
)

// DefaultMaxBatchAttempts bounds resubmission of unprocessed batch items.
const DefaultMaxBatchAttempts = 5

// Config describes a cache instance. TableName is required; everything else
// has a working default. BucketName enables the S3 overflow extension for
// values above DynamoDB's single-item size limit.
type Config struct {
	// Region is the AWS region for both DynamoDB and S3.
	Region string `yaml:"region" json:"region"`

	// Endpoint overrides the AWS endpoint (e.g. LocalStack). Empty means
	// the real AWS endpoint for the region.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`

	// TableName is the DynamoDB table holding cache items.
	TableName string `yaml:"table_name" json:"table_name"`

	// BucketName is the S3 bucket for oversized values. Empty disables the
	// overflow extension; oversized writes then fail with KindInvalidInput.
	BucketName string `yaml:"bucket_name,omitempty" json:"bucket_name,omitempty"`

	// Namespace is an optional prefix applied to every key, stored as
	// "{namespace}:{key}".
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// KeyColumn, ValueColumn, TTLColumn and RefColumn name the table
	// attributes. Zero values take the Default*Column constants.
	KeyColumn   string `yaml:"key_column,omitempty" json:"key_column,omitempty"`
	ValueColumn string `yaml:"value_column,omitempty" json:"value_column,omitempty"`
	TTLColumn   string `yaml:"ttl_column,omitempty" json:"ttl_column,omitempty"`
	RefColumn   string `yaml:"ref_column,omitempty" json:"ref_column,omitempty"`

	// MaxBatchAttempts is the maximum number of resubmissions for
	// unprocessed batch items before KindBatchRetryExhausted is returned.
	// Zero takes DefaultMaxBatchAttempts.
	MaxBatchAttempts int `yaml:"max_batch_attempts,omitempty" json:"max_batch_attempts,omitempty"`

	// ClearScanRate limits Clear to this many scan pages per second.
	// Zero or negative means unpaced.
	ClearScanRate float64 `yaml:"clear_scan_rate,omitempty" json:"clear_scan_rate,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Region:           "us-east-1",
		KeyColumn:        DefaultKeyColumn,
		ValueColumn:      DefaultValueColumn,
		TTLColumn:        DefaultTTLColumn,
		RefColumn:        DefaultRefColumn,
		MaxBatchAttempts: DefaultMaxBatchAttempts,
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		return fmt.Errorf("region is required when no endpoint override is set")
	}
	return nil
}

// normalized fills zero-valued fields with defaults. The receiver is not
// modified.
func (c Config) normalized() Config {
	if c.KeyColumn == "" {
		c.KeyColumn = DefaultKeyColumn
	}
	if c.ValueColumn == "" {
		c.ValueColumn = DefaultValueColumn
	}
	if c.TTLColumn == "" {
		c.TTLColumn = DefaultTTLColumn
	}
	if c.RefColumn == "" {
		c.RefColumn = DefaultRefColumn
	}
	if c.MaxBatchAttempts <= 0 {
		c.MaxBatchAttempts = DefaultMaxBatchAttempts
	}
	return c
}

// Option overrides an optional collaborator on construction.
type Option func(*dynamoCache)

// WithLogger installs a logger. The default is NopLogger.
func WithLogger(l Logger) Option {
	return func(c *dynamoCache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSerializer installs a serializer for application values. The default
// passes values through untouched and relies on attribute coercion.
func WithSerializer(s core.Serializer) Option {
	return func(c *dynamoCache) {
		if s != nil {
			c.serializer = s
		}
	}
}
