package dynacache

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rzpsarthak13/dynacache/internal/core"
)

// fakeDynamo emulates the slice of DynamoDB behavior the cache depends on:
// tagged attributes, conditional puts, the documented batch limits with
// injectable unprocessed subsets, update expressions for increment and
// expire, and paginated scans. It deliberately does NOT expire items; that
// asymmetry is what the TTL-aware read path exists to paper over.
type fakeDynamo struct {
	table string
	items map[string]map[string]types.AttributeValue

	// maxValueSize rejects writes whose value attribute exceeds it,
	// standing in for the 400KB item limit. Zero means unlimited.
	maxValueSize int

	missingTable bool

	// Rounds of artificial partial throttling for batch calls. While
	// positive, each call leaves its last request unprocessed.
	getUnprocessedRounds   int
	writeUnprocessedRounds int

	batchGetCalls   []int // keys per BatchGetItem call
	batchWriteCalls []int // requests per BatchWriteItem call
	scanCalls       int
	queryCalls      int
}

var _ core.DynamoDBAPI = (*fakeDynamo)(nil)

func newFakeDynamo(table string) *fakeDynamo {
	return &fakeDynamo{table: table, items: make(map[string]map[string]types.AttributeValue)}
}

func validationErr(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

func (f *fakeDynamo) keyOf(key map[string]types.AttributeValue) string {
	s, _ := key[DefaultKeyColumn].(*types.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}

func attrSize(attr types.AttributeValue) int {
	switch v := attr.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value)
	case *types.AttributeValueMemberN:
		return len(v.Value)
	case *types.AttributeValueMemberB:
		return len(v.Value)
	default:
		return 1
	}
}

func (f *fakeDynamo) checkSize(item map[string]types.AttributeValue) error {
	if f.maxValueSize <= 0 {
		return nil
	}
	if v, ok := item[DefaultValueColumn]; ok && attrSize(v) > f.maxValueSize {
		return validationErr("Item size has exceeded the maximum allowed size")
	}
	return nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.missingTable || aws.ToString(params.TableName) != f.table {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "Requested resource not found"}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[f.keyOf(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryCalls++
	keyAttr, _ := params.ExpressionAttributeValues[":key"].(*types.AttributeValueMemberS)
	if keyAttr == nil {
		return nil, validationErr("missing :key")
	}
	item, ok := f.items[keyAttr.Value]
	if !ok {
		return &dynamodb.QueryOutput{}, nil
	}
	// The read path always sends the expiry filter; honor it.
	if nowAttr, ok := params.ExpressionAttributeValues[":current_time"].(*types.AttributeValueMemberN); ok {
		if ttlAttr, ok := item[DefaultTTLColumn].(*types.AttributeValueMemberN); ok {
			now, _ := strconv.ParseInt(nowAttr.Value, 10, 64)
			expiresAt, _ := strconv.ParseInt(ttlAttr.Value, 10, 64)
			if expiresAt <= now {
				return &dynamodb.QueryOutput{}, nil
			}
		}
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := f.keyOf(params.Item)
	if params.ConditionExpression != nil {
		if _, exists := f.items[key]; exists {
			return nil, &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "The conditional request failed"}
		}
	}
	if err := f.checkSize(params.Item); err != nil {
		return nil, err
	}
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := f.keyOf(params.Key)
	prior := f.items[key]
	delete(f.items, key)
	out := &dynamodb.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	key := f.keyOf(params.Key)
	expr := aws.ToString(params.UpdateExpression)
	switch {
	case strings.Contains(expr, ":delta"):
		deltaAttr, _ := params.ExpressionAttributeValues[":delta"].(*types.AttributeValueMemberN)
		delta, _ := strconv.ParseInt(deltaAttr.Value, 10, 64)
		current := int64(0)
		if item, ok := f.items[key]; ok {
			n, ok := item[DefaultValueColumn].(*types.AttributeValueMemberN)
			if !ok {
				return nil, validationErr("An operand in the update expression has an incorrect data type")
			}
			current, _ = strconv.ParseInt(n.Value, 10, 64)
		} else {
			f.items[key] = map[string]types.AttributeValue{
				DefaultKeyColumn: &types.AttributeValueMemberS{Value: key},
			}
		}
		updated := &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
		f.items[key][DefaultValueColumn] = updated
		return &dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{DefaultValueColumn: updated},
		}, nil
	case strings.HasPrefix(expr, "SET"):
		if _, ok := f.items[key]; !ok {
			f.items[key] = map[string]types.AttributeValue{
				DefaultKeyColumn: &types.AttributeValueMemberS{Value: key},
			}
		}
		f.items[key][DefaultTTLColumn] = params.ExpressionAttributeValues[":ttl"]
		return &dynamodb.UpdateItemOutput{}, nil
	case strings.HasPrefix(expr, "REMOVE"):
		if item, ok := f.items[key]; ok {
			delete(item, DefaultTTLColumn)
		}
		return &dynamodb.UpdateItemOutput{}, nil
	default:
		return nil, validationErr("unsupported update expression: " + expr)
	}
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	ka := params.RequestItems[f.table]
	f.batchGetCalls = append(f.batchGetCalls, len(ka.Keys))
	keys := ka.Keys
	var unprocessed []map[string]types.AttributeValue
	if f.getUnprocessedRounds > 0 {
		f.getUnprocessedRounds--
		cut := len(keys) - 1
		unprocessed = keys[cut:]
		keys = keys[:cut]
	}
	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for _, key := range keys {
		if item, ok := f.items[f.keyOf(key)]; ok {
			out.Responses[f.table] = append(out.Responses[f.table], item)
		}
	}
	if len(unprocessed) > 0 {
		out.UnprocessedKeys[f.table] = types.KeysAndAttributes{Keys: unprocessed}
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	reqs := params.RequestItems[f.table]
	f.batchWriteCalls = append(f.batchWriteCalls, len(reqs))
	var unprocessed []types.WriteRequest
	if f.writeUnprocessedRounds > 0 {
		f.writeUnprocessedRounds--
		cut := len(reqs) - 1
		unprocessed = reqs[cut:]
		reqs = reqs[:cut]
	}
	for _, req := range reqs {
		switch {
		case req.PutRequest != nil:
			if err := f.checkSize(req.PutRequest.Item); err != nil {
				return nil, err
			}
			f.items[f.keyOf(req.PutRequest.Item)] = req.PutRequest.Item
		case req.DeleteRequest != nil:
			delete(f.items, f.keyOf(req.DeleteRequest.Key))
		}
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	if len(unprocessed) > 0 {
		out.UnprocessedItems[f.table] = unprocessed
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanCalls++
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := ""
	if params.ExclusiveStartKey != nil {
		start = f.keyOf(params.ExclusiveStartKey)
	}
	limit := len(keys)
	if params.Limit != nil {
		limit = int(*params.Limit)
	}
	prefix := ""
	if params.FilterExpression != nil {
		if p, ok := params.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS); ok {
			prefix = p.Value
		}
	}

	out := &dynamodb.ScanOutput{}
	scanned := 0
	lastKey := ""
	remaining := false
	for _, k := range keys {
		if start != "" && k <= start {
			continue
		}
		if scanned == limit {
			remaining = true
			break
		}
		scanned++
		lastKey = k
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		out.Items = append(out.Items, map[string]types.AttributeValue{
			DefaultKeyColumn: &types.AttributeValueMemberS{Value: k},
		})
	}
	if remaining {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			DefaultKeyColumn: &types.AttributeValueMemberS{Value: lastKey},
		}
	}
	return out, nil
}

// fakeBlob is an in-memory stand-in for the S3 capability.
type fakeBlob struct {
	objects       map[string][]byte
	missingBucket bool
	deleteErr     error
	deleteCalls   int
}

var _ core.BlobAPI = (*fakeBlob)(nil)

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: make(map[string][]byte)}
}

func blobKey(bucket, key *string) string {
	return aws.ToString(bucket) + "\x00" + aws.ToString(key)
}

func (b *fakeBlob) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if b.missingBucket {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (b *fakeBlob) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	b.objects[blobKey(params.Bucket, params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBlob) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := b.objects[blobKey(params.Bucket, params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *fakeBlob) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.deleteCalls++
	if b.deleteErr != nil {
		return nil, b.deleteErr
	}
	delete(b.objects, blobKey(params.Bucket, params.Key))
	return &s3.DeleteObjectOutput{}, nil
}
