package dynacache

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Kind classifies cache errors. Store-level failures are always translated
// into one of these kinds before crossing the package boundary; callers
// never see raw DynamoDB or S3 error codes.
type Kind int

const (
	// KindClientError is the catch-all for store failures that do not map
	// to a more specific kind. The original store message is retained.
	KindClientError Kind = iota

	// KindInvalidInput covers oversized items, malformed update expressions
	// and non-numeric increment targets (DynamoDB ValidationException).
	KindInvalidInput

	// KindThroughputExceeded maps ProvisionedThroughputExceededException.
	KindThroughputExceeded

	// KindClientCreationFailed wraps construction-time failures that are
	// not store errors.
	KindClientCreationFailed

	// KindTableNotFound maps ResourceNotFoundException on DynamoDB calls.
	KindTableNotFound

	// KindBucketNotFound maps 404s on blob-store calls.
	KindBucketNotFound

	// KindKeyAlreadyExists is returned by Add when the conditional put
	// loses to an existing item.
	KindKeyAlreadyExists

	// KindNotANumber is returned by Increment when the stored value cannot
	// be interpreted as a number.
	KindNotANumber

	// KindUnsupportedValueType is returned when a value's runtime type has
	// no tagged-attribute encoding.
	KindUnsupportedValueType

	// KindBatchRetryExhausted is returned when unprocessed batch items
	// remain after the configured number of resubmission attempts.
	KindBatchRetryExhausted
)

func (k Kind) String() string {
	switch k {
	case KindClientError:
		return "client error"
	case KindInvalidInput:
		return "invalid input"
	case KindThroughputExceeded:
		return "throughput exceeded"
	case KindClientCreationFailed:
		return "client creation failed"
	case KindTableNotFound:
		return "table not found"
	case KindBucketNotFound:
		return "bucket not found"
	case KindKeyAlreadyExists:
		return "key already exists"
	case KindNotANumber:
		return "not a number"
	case KindUnsupportedValueType:
		return "unsupported value type"
	case KindBatchRetryExhausted:
		return "batch retry exhausted"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by every cache operation that fails.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dynacache: %s: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("dynacache: %s: %v", e.Kind, e.cause)
	}
	return "dynacache: " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// newError builds a typed error with a formatted message.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError builds a typed error that retains the underlying cause.
func wrapError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// IsKind reports whether err (or anything it wraps) is a cache error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// translateDynamo maps a DynamoDB call failure to the error taxonomy.
// Already-translated errors pass through unchanged.
func translateDynamo(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return wrapError(KindClientError, err)
	}
	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException":
		return wrapError(KindTableNotFound, err)
	case "ValidationException":
		return wrapError(KindInvalidInput, err)
	case "ProvisionedThroughputExceededException":
		return wrapError(KindThroughputExceeded, err)
	default:
		return wrapError(KindClientError, err)
	}
}

// translateBlob maps an S3 call failure to the error taxonomy. S3 reports a
// missing bucket as an HTTP 404 with code "NotFound" (HeadBucket) or
// "NoSuchBucket" (object calls).
func translateBlob(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return wrapError(KindClientError, err)
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchBucket", "404":
		return wrapError(KindBucketNotFound, err)
	default:
		return wrapError(KindClientError, err)
	}
}

// isConditionalCheckFailed reports whether err is DynamoDB's rejection of a
// conditional expression, which Add uses to detect an existing key.
func isConditionalCheckFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

// isValidationError reports whether err carries DynamoDB's
// ValidationException code, before or after translation.
func isValidationError(err error) bool {
	if IsKind(err, KindInvalidInput) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}
