package dynacache

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Get retrieves a single item. It issues a Query with a filter expression
// rather than a point lookup: DynamoDB's TTL sweep only deletes expired
// items within ~48 hours of the expiry instant, so the filter hides items
// that are logically expired but still physically present.
func (c *dynamoCache) Get(ctx context.Context, key string) (any, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	now := time.Now().UTC().Unix()
	out, err := c.dynamo.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		Limit:                  aws.Int32(1),
		KeyConditionExpression: aws.String("#pk = :key"),
		FilterExpression:       aws.String("attribute_not_exists(#ttl) OR #ttl > :current_time"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  c.keyColumn,
			"#ttl": c.ttlColumn,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key":          &types.AttributeValueMemberS{Value: c.buildKey(key)},
			":current_time": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
		},
	})
	if err != nil {
		return nil, false, translateDynamo(err)
	}
	if len(out.Items) == 0 {
		return nil, false, nil
	}
	raw, err := c.retrieveValue(ctx, out.Items[0])
	if err != nil {
		return nil, false, err
	}
	v, err := c.serializer.Loads(raw)
	if err != nil {
		return nil, false, wrapError(KindClientError, err)
	}
	return v, true, nil
}

// Set stores value under key, overwriting any existing item. When DynamoDB
// rejects the item as too large and a bucket is configured, the value
// spills to S3 and a reference record is stored instead.
func (c *dynamoCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	dumped, err := c.serializer.Dumps(value)
	if err != nil {
		return wrapError(KindClientError, err)
	}
	storageKey := c.buildKey(key)
	item, err := c.buildSetItem(storageKey, dumped, ttl)
	if err != nil {
		return err
	}
	_, err = c.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err == nil {
		return nil
	}
	if isValidationError(err) && c.bucket != "" {
		return c.overflowSet(ctx, storageKey, dumped, ttl)
	}
	return translateDynamo(err)
}

// Add stores value under key only if no item exists for it.
func (c *dynamoCache) Add(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	dumped, err := c.serializer.Dumps(value)
	if err != nil {
		return wrapError(KindClientError, err)
	}
	storageKey := c.buildKey(key)
	item, err := c.buildSetItem(storageKey, dumped, ttl)
	if err != nil {
		return err
	}
	_, err = c.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": c.keyColumn},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return newError(KindKeyAlreadyExists, "key %q already exists in table %s", key, c.table)
		}
		return translateDynamo(err)
	}
	return nil
}

// Delete removes the item, returning its prior attributes so that an
// overflow record's S3 payload can be cleaned up. The primary record is
// deleted first; if the follow-up blob delete fails the blob is leaked
// (never again visible as a cache hit) and the failure is logged.
func (c *dynamoCache) Delete(ctx context.Context, key string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	out, err := c.dynamo.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(c.table),
		Key:          c.keyAttr(c.buildKey(key)),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return translateDynamo(err)
	}
	c.deleteOverflow(ctx, key, out.Attributes)
	return nil
}

// Exists reports whether the key holds a logically live item. Like Get, it
// must not count items whose TTL has passed but which the store has not yet
// swept.
func (c *dynamoCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	out, err := c.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key:       c.keyAttr(c.buildKey(key)),
	})
	if err != nil {
		return false, translateDynamo(err)
	}
	if out.Item == nil {
		return false, nil
	}
	return !c.itemExpired(out.Item, time.Now().UTC().Unix()), nil
}

// Increment adds delta to the stored number via a single atomic update,
// creating the item at delta when absent. A ValidationException means the
// stored value is not numerically typed; the fallback then reads, coerces
// and rewrites the value in-process. The fallback spans two calls with no
// compare-and-swap, so concurrent increments on the same key can lose
// updates.
func (c *dynamoCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	out, err := c.dynamo.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.table),
		Key:                      c.keyAttr(c.buildKey(key)),
		UpdateExpression:         aws.String("SET #val = if_not_exists(#val, :start) + :delta"),
		ExpressionAttributeNames: map[string]string{"#val": c.valueColumn},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: "0"},
			":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isValidationError(err) {
			return c.incrementFallback(ctx, key, delta, err)
		}
		return 0, translateDynamo(err)
	}
	attr, ok := out.Attributes[c.valueColumn]
	if !ok {
		return 0, newError(KindClientError, "increment of %q returned no updated value", key)
	}
	n, ok := toInt64(decodeValue(attr))
	if !ok {
		return 0, newError(KindNotANumber, "item %q is not a number after increment", key)
	}
	return n, nil
}

func (c *dynamoCache) incrementFallback(ctx context.Context, key string, delta int64, cause error) (int64, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, translateDynamo(cause)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, newError(KindNotANumber, "item %q is not a number: %v", key, v)
	}
	n += delta
	c.log.Debug("increment fell back to read-modify-write", Fields{"key": key})
	if err := c.Set(ctx, key, n, 0); err != nil {
		return 0, err
	}
	return n, nil
}

// Expire updates only the item's TTL attribute. A ttl of zero removes the
// attribute, making the item persistent.
func (c *dynamoCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.table),
		Key:                      c.keyAttr(c.buildKey(key)),
		ExpressionAttributeNames: map[string]string{"#ttl": c.ttlColumn},
	}
	if ttl > 0 {
		input.UpdateExpression = aws.String("SET #ttl = :ttl")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.buildTTL(ttl), 10)},
		}
	} else {
		input.UpdateExpression = aws.String("REMOVE #ttl")
	}
	if _, err := c.dynamo.UpdateItem(ctx, input); err != nil {
		return translateDynamo(err)
	}
	return nil
}

// TTL returns the seconds remaining until expiry, TTLNone when the item
// exists without a TTL, or TTLMissing when the item is absent or its
// logical expiry has already passed.
func (c *dynamoCache) TTL(ctx context.Context, key string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	out, err := c.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(c.table),
		Key:                      c.keyAttr(c.buildKey(key)),
		ProjectionExpression:     aws.String("#ttl"),
		ExpressionAttributeNames: map[string]string{"#ttl": c.ttlColumn},
	})
	if err != nil {
		return 0, translateDynamo(err)
	}
	if out.Item == nil {
		return TTLMissing, nil
	}
	expiresAt, ok := c.itemTTL(out.Item)
	if !ok {
		return TTLNone, nil
	}
	remaining := expiresAt - time.Now().UTC().Unix()
	if remaining <= 0 {
		return TTLMissing, nil
	}
	return remaining, nil
}

// Clear deletes every item whose key begins with prefix, scanning the table
// a page at a time and batch-deleting each page. An empty prefix on a
// namespaced cache clears only that namespace; with no namespace it clears
// the whole table. The scan is full-table work and is unsuitable for
// production-scale invalidation; ClearScanRate can pace it.
func (c *dynamoCache) Clear(ctx context.Context, prefix string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	input := &dynamodb.ScanInput{
		TableName:                aws.String(c.table),
		ProjectionExpression:     aws.String("#pk"),
		ExpressionAttributeNames: map[string]string{"#pk": c.keyColumn},
		Limit:                    aws.Int32(maxBatchWriteItems),
	}
	if fullPrefix := c.buildClearPrefix(prefix); fullPrefix != "" {
		input.FilterExpression = aws.String("begins_with(#pk, :prefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: fullPrefix},
		}
	}

	for {
		if c.clearLimiter != nil {
			if err := c.clearLimiter.Wait(ctx); err != nil {
				return wrapError(KindClientError, err)
			}
		}
		out, err := c.dynamo.Scan(ctx, input)
		if err != nil {
			return translateDynamo(err)
		}
		if len(out.Items) > 0 {
			if err := c.deleteItemKeys(ctx, out.Items); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (c *dynamoCache) buildClearPrefix(prefix string) string {
	if c.namespace == "" {
		return prefix
	}
	if prefix == "" {
		return c.namespace + ":"
	}
	return c.namespace + ":" + prefix
}

// retrieveValue extracts the plain value from a fetched item, resolving an
// overflow reference through the blob store when present. A blob payload
// comes back as a string when it is valid UTF-8, raw bytes otherwise.
func (c *dynamoCache) retrieveValue(ctx context.Context, item map[string]types.AttributeValue) (any, error) {
	valueAttr, ok := item[c.valueColumn]
	if !ok {
		return nil, nil
	}
	if bucket := c.overflowBucket(item); bucket != "" {
		if blobKey, ok := valueAttr.(*types.AttributeValueMemberS); ok {
			return c.resolveOverflow(ctx, bucket, blobKey.Value)
		}
	}
	return decodeValue(valueAttr), nil
}

// overflowBucket returns the bucket an item's value was spilled to, or "".
func (c *dynamoCache) overflowBucket(item map[string]types.AttributeValue) string {
	if attr, ok := item[c.refColumn]; ok {
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			return s.Value
		}
	}
	return ""
}

// itemTTL returns the item's absolute expiry instant in epoch seconds.
func (c *dynamoCache) itemTTL(item map[string]types.AttributeValue) (int64, bool) {
	attr, ok := item[c.ttlColumn]
	if !ok {
		return 0, false
	}
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	expiresAt, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return expiresAt, true
}

// itemExpired reports whether the item's logical expiry has passed.
func (c *dynamoCache) itemExpired(item map[string]types.AttributeValue, now int64) bool {
	expiresAt, ok := c.itemTTL(item)
	return ok && expiresAt <= now
}

// keyAttr builds the primary-key attribute map for a storage key.
func (c *dynamoCache) keyAttr(storageKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		c.keyColumn: &types.AttributeValueMemberS{Value: storageKey},
	}
}

// buildSetItem builds the full attribute map for a put. The value has
// already been through the serializer.
func (c *dynamoCache) buildSetItem(storageKey string, dumped any, ttl time.Duration) (map[string]types.AttributeValue, error) {
	valueAttr, err := encodeValue(dumped)
	if err != nil {
		return nil, err
	}
	item := map[string]types.AttributeValue{
		c.keyColumn:   &types.AttributeValueMemberS{Value: storageKey},
		c.valueColumn: valueAttr,
	}
	if ttl > 0 {
		item[c.ttlColumn] = &types.AttributeValueMemberN{Value: strconv.FormatInt(c.buildTTL(ttl), 10)}
	}
	return item, nil
}

// buildTTL converts a relative ttl into the absolute expiry instant stored
// in the table.
func (c *dynamoCache) buildTTL(ttl time.Duration) int64 {
	return time.Now().UTC().Add(ttl).Unix()
}
