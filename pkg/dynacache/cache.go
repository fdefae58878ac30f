// Package dynacache implements cache semantics on top of AWS DynamoDB, with
// optional S3 overflow for values above DynamoDB's single-item size limit.
//
// DynamoDB's native capabilities do not match what cache clients expect:
// its TTL sweep is a background process that can lag the logical expiry
// instant by up to 48 hours, batch calls are capped at 100 reads / 25
// writes and may return unprocessed subsets, single items are capped at
// 400KB, and values are stored as tagged attributes. This package adapts
// all of that behind a plain cache API: reads hide logically expired items,
// multi-item operations are chunked and partially-rejected items are
// resubmitted with backoff, oversized values spill transparently to S3, and
// store errors are translated into a stable taxonomy (see Kind).
package dynacache

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/dynacache/internal/awsclient"
	"github.com/rzpsarthak13/dynacache/internal/core"
)

// DynamoDBAPI is the injectable DynamoDB capability; *dynamodb.Client
// satisfies it.
type DynamoDBAPI = core.DynamoDBAPI

// BlobAPI is the injectable blob-store capability; *s3.Client satisfies it.
type BlobAPI = core.BlobAPI

// Serializer converts application values to and from storable values.
type Serializer = core.Serializer

// KeyValue is one entry of a MultiSet request.
type KeyValue struct {
	Key   string
	Value any
}

// TTL introspection sentinels. The two must stay distinguishable; they are
// part of the observable contract.
const (
	// TTLNone means the item exists but has no TTL configured.
	TTLNone int64 = -1

	// TTLMissing means the item does not exist (or is logically expired).
	TTLMissing int64 = -2
)

// Cache is the cache contract over DynamoDB. All operations are remote
// calls; pass a context with a deadline to bound them. Failures surface as
// *Error, never as raw SDK errors.
type Cache interface {
	// Get returns the value stored under key, hiding items whose logical
	// expiry has passed even if DynamoDB has not yet swept them.
	Get(ctx context.Context, key string) (any, bool, error)

	// MultiGet returns the values for the given keys. Order is not
	// guaranteed to match the input after unprocessed-key reconciliation;
	// absent and expired keys are simply omitted.
	MultiGet(ctx context.Context, keys []string) ([]any, error)

	// Set stores value under key, overwriting any existing item. A ttl of
	// zero means no expiry. Oversized values spill to S3 when a bucket is
	// configured; otherwise the call fails with KindInvalidInput.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// MultiSet stores all pairs with a shared ttl, chunked into store-legal
	// batch calls. The overflow extension does not apply here; an oversized
	// pair fails the batch with KindInvalidInput.
	MultiSet(ctx context.Context, pairs []KeyValue, ttl time.Duration) error

	// Add stores value under key only if the key does not already exist;
	// otherwise it fails with KindKeyAlreadyExists and leaves the stored
	// value untouched.
	Add(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes the item and, if it was an overflow record, its S3
	// payload. A failed blob delete after a successful primary delete is
	// logged and not retried.
	Delete(ctx context.Context, key string) error

	// MultiDelete removes the given keys in chunked batch calls. Overflow
	// payloads are not cleaned up on this path.
	MultiDelete(ctx context.Context, keys []string) error

	// Clear deletes every item whose key starts with prefix (all items when
	// prefix is empty and the cache has no namespace). It is backed by a
	// paginated table scan and is unsuitable for production-scale
	// invalidation.
	Clear(ctx context.Context, prefix string) error

	// Exists reports whether key holds a logically live item.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds delta to the stored number, creating the
	// item at delta if absent. When the stored value is not numerically
	// typed it falls back to read-modify-write, which can lose concurrent
	// updates; a value that cannot be coerced fails with KindNotANumber.
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets the item's TTL. A ttl of zero removes the TTL, making the
	// item persistent.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the seconds remaining until expiry, TTLNone when the item
	// has no TTL, or TTLMissing when the item is absent or already expired.
	TTL(ctx context.Context, key string) (int64, error)

	// Close releases the cache. Operations on a closed cache fail.
	Close() error
}

// dynamoCache implements Cache. It holds a single shared client handle per
// store, acquired on construction and released once on Close.
type dynamoCache struct {
	dynamo core.DynamoDBAPI
	blob   core.BlobAPI

	table       string
	bucket      string
	namespace   string
	keyColumn   string
	valueColumn string
	ttlColumn   string
	refColumn   string

	maxBatchAttempts int
	clearLimiter     *rate.Limiter

	serializer core.Serializer
	log        Logger

	// sleep is stubbed in tests to make backoff observable.
	sleep func(ctx context.Context, d time.Duration) error

	closed bool
}

var _ Cache = (*dynamoCache)(nil)

// New builds SDK clients from cfg, verifies that the table (and bucket, if
// configured) exists, and returns a ready cache. Construction failures that
// are not store errors surface as KindClientCreationFailed.
func New(ctx context.Context, cfg *Config, opts ...Option) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindClientCreationFailed, "%v", err)
	}
	clients, err := awsclient.New(ctx, awsclient.Config{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		WithS3:          cfg.BucketName != "",
	})
	if err != nil {
		return nil, wrapError(KindClientCreationFailed, err)
	}
	return NewWithClients(ctx, clients.DynamoDB, clients.S3, cfg, opts...)
}

// NewWithClients wires a cache over caller-owned store clients. The clients
// must already be authenticated; the cache only borrows them for operations
// and does not tear them down beyond marking itself closed.
func NewWithClients(ctx context.Context, dynamo DynamoDBAPI, blob BlobAPI, cfg *Config, opts ...Option) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindClientCreationFailed, "%v", err)
	}
	if dynamo == nil {
		return nil, newError(KindClientCreationFailed, "dynamodb client is required")
	}
	norm := cfg.normalized()
	if norm.BucketName != "" && blob == nil {
		return nil, newError(KindClientCreationFailed, "bucket %q configured but no blob client provided", norm.BucketName)
	}

	c := &dynamoCache{
		dynamo:           dynamo,
		blob:             blob,
		table:            norm.TableName,
		bucket:           norm.BucketName,
		namespace:        norm.Namespace,
		keyColumn:        norm.KeyColumn,
		valueColumn:      norm.ValueColumn,
		ttlColumn:        norm.TTLColumn,
		refColumn:        norm.RefColumn,
		maxBatchAttempts: norm.MaxBatchAttempts,
		serializer:       rawSerializer{},
		log:              NopLogger{},
		sleep:            sleepContext,
	}
	if norm.ClearScanRate > 0 {
		c.clearLimiter = rate.NewLimiter(rate.Limit(norm.ClearScanRate), 1)
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.verify(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// verify checks that the table and, when configured, the bucket exist.
func (c *dynamoCache) verify(ctx context.Context) error {
	_, err := c.dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		return translateDynamo(err)
	}
	if c.bucket != "" {
		_, err := c.blob.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(c.bucket),
		})
		if err != nil {
			return translateBlob(err)
		}
	}
	return nil
}

// Close marks the cache closed. The SDK clients hold no connection state
// that needs explicit teardown.
func (c *dynamoCache) Close() error {
	c.closed = true
	return nil
}

func (c *dynamoCache) checkOpen() error {
	if c.closed {
		return newError(KindClientError, "cache is closed")
	}
	return nil
}

// buildKey applies the cache namespace to a caller key.
func (c *dynamoCache) buildKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// rawSerializer is the default serializer: values pass through untouched
// and attribute coercion handles typing.
type rawSerializer struct{}

func (rawSerializer) Dumps(v any) (any, error) { return v, nil }
func (rawSerializer) Loads(v any) (any, error) { return v, nil }

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
