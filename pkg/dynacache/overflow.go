package dynacache

import (
	"bytes"
	"context"
	"io"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// overflowSet handles a Set whose item DynamoDB rejected as too large. The
// payload is written to S3 under "{table}/{storage key}" and the primary
// record stores the blob key as its value, with the bucket name in the
// overflow-ref attribute.
func (c *dynamoCache) overflowSet(ctx context.Context, storageKey string, dumped any, ttl time.Duration) error {
	body, err := overflowBody(dumped)
	if err != nil {
		return err
	}
	blobKey := c.table + "/" + storageKey
	_, err = c.blob.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(blobKey),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return translateBlob(err)
	}

	item, err := c.buildSetItem(storageKey, blobKey, ttl)
	if err != nil {
		return err
	}
	item[c.refColumn] = &types.AttributeValueMemberS{Value: c.bucket}
	_, err = c.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return translateDynamo(err)
	}
	c.log.Debug("oversized value spilled to blob store", Fields{
		"key":    storageKey,
		"bucket": c.bucket,
		"bytes":  len(body),
	})
	return nil
}

// resolveOverflow fetches a spilled payload. Valid UTF-8 comes back as a
// string, anything else as raw bytes.
func (c *dynamoCache) resolveOverflow(ctx context.Context, bucket, blobKey string) (any, error) {
	out, err := c.blob.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(blobKey),
	})
	if err != nil {
		return nil, translateBlob(err)
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapError(KindClientError, err)
	}
	if utf8.Valid(payload) {
		return string(payload), nil
	}
	return payload, nil
}

// deleteOverflow removes the S3 payload referenced by a just-deleted
// primary record, if any. The primary delete has already happened, so a
// failure here only leaks the blob; it is logged rather than retried.
func (c *dynamoCache) deleteOverflow(ctx context.Context, key string, attrs map[string]types.AttributeValue) {
	bucket := c.overflowBucket(attrs)
	if bucket == "" {
		return
	}
	blobAttr, ok := attrs[c.valueColumn].(*types.AttributeValueMemberS)
	if !ok {
		return
	}
	_, err := c.blob.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(blobAttr.Value),
	})
	if err != nil {
		c.log.Warn("blob delete failed after primary delete; payload leaked", Fields{
			"key":    key,
			"bucket": bucket,
			"blob":   blobAttr.Value,
			"err":    err,
		})
	}
}

// overflowBody converts a serialized value into the opaque payload stored
// in S3. Only textual and binary values can overflow; anything else was
// rejected by DynamoDB for a reason other than size.
func overflowBody(dumped any) ([]byte, error) {
	switch v := dumped.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, newError(KindInvalidInput, "value of type %T cannot overflow to blob storage", dumped)
	}
}
