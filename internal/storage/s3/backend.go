package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/observefs/observefs/internal/circuit"
	obserrors "github.com/observefs/observefs/pkg/errors"
)

// API is the subset of the S3 client used by Backend.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ObjectInfo describes a single object.
type ObjectInfo struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	StorageClass string    `json:"storage_class,omitempty"`
}

// ListResult is the outcome of a listing. Prefixes holds the common prefixes
// rolled up by the delimiter.
type ListResult struct {
	Objects  []ObjectInfo
	Prefixes []string
}

// Backend reads objects from any bucket reachable with one set of
// credentials.
type Backend struct {
	client  API
	config  *Config
	log     logrus.FieldLogger
	breaker *circuit.Breaker
}

// NewBackend builds an S3 client from cfg and the default AWS credential
// chain. Static credentials in cfg take precedence.
func NewBackend(ctx context.Context, cfg *Config, log logrus.FieldLogger) (*Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.HasStaticCredentials() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, obserrors.NewError(obserrors.ErrCodeConnectionFailed, "failed to load AWS config").
			WithComponent("s3-backend").
			WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewBackendWithClient(client, cfg, log), nil
}

// NewBackendWithClient wraps an existing client.
func NewBackendWithClient(client API, cfg *Config, log logrus.FieldLogger) *Backend {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Backend{
		client: client,
		config: cfg,
		log:    log.WithField("component", "s3-backend"),
	}
	if cfg.CircuitBreaker.Enabled {
		b.breaker = circuit.New("s3", cfg.CircuitBreaker, log)
	}
	return b
}

// Breaker returns the circuit breaker guarding the client, or nil.
func (b *Backend) Breaker() *circuit.Breaker {
	return b.breaker
}

// call runs fn with the request timeout applied, through the breaker when
// one is configured.
func (b *Backend) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if b.breaker == nil {
		return fn(ctx)
	}
	return b.breaker.Execute(ctx, fn)
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, b.config.RequestTimeout)
	}
	return ctx, func() {}
}

// GetObjectRange reads size bytes of bucket/key starting at offset. A
// non-positive size reads to the end of the object.
func (b *Backend) GetObjectRange(ctx context.Context, bucket, key string, offset, size int64) ([]byte, error) {
	if offset < 0 {
		return nil, obserrors.Newf(obserrors.ErrCodePathInvalid, "negative offset %d", offset)
	}

	var rangeHeader *string
	if offset > 0 || size > 0 {
		if size > 0 {
			rangeHeader = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
		} else {
			rangeHeader = aws.String(fmt.Sprintf("bytes=%d-", offset))
		}
	}

	var data []byte
	err := b.call(ctx, func(ctx context.Context) error {
		result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  rangeHeader,
		})
		if err != nil {
			return b.translateError(err, "GetObject", bucket, key)
		}
		defer result.Body.Close()

		data, err = io.ReadAll(result.Body)
		if err != nil {
			return b.translateError(err, "GetObject", bucket, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// HeadObject returns the metadata of bucket/key.
func (b *Backend) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	var result *s3.HeadObjectOutput
	err := b.call(ctx, func(ctx context.Context) error {
		var err error
		result, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return b.translateError(err, "HeadObject", bucket, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
		ContentType:  aws.ToString(result.ContentType),
		StorageClass: string(result.StorageClass),
	}, nil
}

// ListObjects lists every key under prefix, following continuation tokens.
// With a non-empty delimiter, keys below the next delimiter are rolled up
// into Prefixes.
func (b *Backend) ListObjects(ctx context.Context, bucket, prefix, delimiter string) (*ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	result := &ListResult{}
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := b.call(ctx, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			if err != nil {
				return b.translateError(err, "ListObjectsV2", bucket, prefix)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			result.Objects = append(result.Objects, ObjectInfo{
				Bucket:       bucket,
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
				StorageClass: string(obj.StorageClass),
			})
		}
		for _, cp := range page.CommonPrefixes {
			result.Prefixes = append(result.Prefixes, aws.ToString(cp.Prefix))
		}
	}

	b.log.WithFields(logrus.Fields{
		"bucket":   bucket,
		"prefix":   prefix,
		"objects":  len(result.Objects),
		"prefixes": len(result.Prefixes),
	}).Debug("Listed objects")

	return result, nil
}

// HealthCheck verifies that bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context, bucket string) error {
	return b.call(ctx, func(ctx context.Context) error {
		if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return b.translateError(err, "HeadBucket", bucket, "")
		}
		return nil
	})
}

func (b *Backend) translateError(err error, operation, bucket, key string) error {
	var code obserrors.ErrorCode
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = obserrors.ErrCodeOperationCanceled
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		code = obserrors.ErrCodeObjectNotFound
	case isErrorType[*s3types.NoSuchBucket](err):
		code = obserrors.ErrCodeBucketNotFound
	case apiErrorCode(err) == "AccessDenied" || apiErrorCode(err) == "Forbidden":
		code = obserrors.ErrCodeAccessDenied
	case operation == "ListObjectsV2":
		code = obserrors.ErrCodeStorageList
	default:
		code = obserrors.ErrCodeStorageRead
	}

	return obserrors.Newf(code, "%s failed for %s", operation, FormatURI(bucket, key)).
		WithComponent("s3-backend").
		WithOperation(operation).
		WithDetail("bucket", bucket).
		WithDetail("key", key).
		WithCause(err)
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
