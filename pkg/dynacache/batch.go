package dynacache

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB's per-call batch limits.
const (
	maxBatchGetItems   = 100
	maxBatchWriteItems = 25
)

// MultiGet retrieves the given keys in chunked BatchGetItem calls. Items
// the store leaves unprocessed are resubmitted with linear backoff, and
// results from resubmissions are merged in, so output order is not
// guaranteed to match input order. Logically expired items are filtered
// client-side, matching the single-item read path.
func (c *dynamoCache) MultiGet(ctx context.Context, keys []string) ([]any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]any, 0, len(keys))
	for start := 0; start < len(keys); start += maxBatchGetItems {
		end := min(start+maxBatchGetItems, len(keys))
		chunk, err := c.batchGetChunk(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

// batchGetChunk issues one BatchGetItem for at most 100 keys and reconciles
// the unprocessed subset until it drains or attempts run out.
func (c *dynamoCache) batchGetChunk(ctx context.Context, keys []string) ([]any, error) {
	keyAttrs := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, key := range keys {
		keyAttrs = append(keyAttrs, c.keyAttr(c.buildKey(key)))
	}
	request := map[string]types.KeysAndAttributes{
		c.table: {Keys: keyAttrs},
	}

	var results []any
	attempts := 0
	for {
		out, err := c.dynamo.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: request,
		})
		if err != nil {
			return nil, translateDynamo(err)
		}
		now := time.Now().UTC().Unix()
		for _, item := range out.Responses[c.table] {
			if c.itemExpired(item, now) {
				continue
			}
			raw, err := c.retrieveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			v, err := c.serializer.Loads(raw)
			if err != nil {
				return nil, wrapError(KindClientError, err)
			}
			results = append(results, v)
		}
		if len(out.UnprocessedKeys) == 0 {
			return results, nil
		}
		attempts++
		if attempts > c.maxBatchAttempts {
			return nil, newError(KindBatchRetryExhausted,
				"batch get left unprocessed keys after %d attempts", attempts-1)
		}
		c.log.Debug("resubmitting unprocessed batch-get keys", Fields{
			"attempt": attempts,
			"tables":  len(out.UnprocessedKeys),
		})
		if err := c.sleep(ctx, time.Duration(attempts)*time.Second); err != nil {
			return nil, wrapError(KindClientError, err)
		}
		request = out.UnprocessedKeys
	}
}

// MultiSet stores all pairs with a shared ttl in chunked BatchWriteItem
// calls (25 items per call). The overflow extension does not apply on this
// path: a pair above the single-item size limit fails the call with
// KindInvalidInput.
func (c *dynamoCache) MultiSet(ctx context.Context, pairs []KeyValue, ttl time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	requests := make([]types.WriteRequest, 0, len(pairs))
	for _, pair := range pairs {
		dumped, err := c.serializer.Dumps(pair.Value)
		if err != nil {
			return wrapError(KindClientError, err)
		}
		item, err := c.buildSetItem(c.buildKey(pair.Key), dumped, ttl)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}
	return c.batchWrite(ctx, requests)
}

// MultiDelete removes the given keys in chunked BatchWriteItem calls.
func (c *dynamoCache) MultiDelete(ctx context.Context, keys []string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: c.keyAttr(c.buildKey(key))},
		})
	}
	return c.batchWrite(ctx, requests)
}

// deleteItemKeys batch-deletes items already holding storage-level key
// attributes, as returned by a Scan page.
func (c *dynamoCache) deleteItemKeys(ctx context.Context, items []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: item},
		})
	}
	return c.batchWrite(ctx, requests)
}

// batchWrite submits write requests in chunks of 25, resubmitting any
// unprocessed subset with the same bounded linear backoff the read path
// uses.
func (c *dynamoCache) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWriteItems {
		end := min(start+maxBatchWriteItems, len(requests))
		if err := c.batchWriteChunk(ctx, requests[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *dynamoCache) batchWriteChunk(ctx context.Context, requests []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			c.table: requests,
		},
	}
	attempts := 0
	for {
		out, err := c.dynamo.BatchWriteItem(ctx, input)
		if err != nil {
			return translateDynamo(err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		attempts++
		if attempts > c.maxBatchAttempts {
			return newError(KindBatchRetryExhausted,
				"batch write left unprocessed items after %d attempts", attempts-1)
		}
		c.log.Debug("resubmitting unprocessed batch-write items", Fields{
			"attempt": attempts,
		})
		if err := c.sleep(ctx, time.Duration(attempts)*time.Second); err != nil {
			return wrapError(KindClientError, err)
		}
		input = &dynamodb.BatchWriteItemInput{RequestItems: out.UnprocessedItems}
	}
}
