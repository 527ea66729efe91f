package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/mos-registry-driver/interfaces"
)

// DefaultHost is the public MOS endpoint used when no host is configured.
const DefaultHost = "s3-hd1.hwclouds.com"

// DefaultRegion is only used for request signing; MOS ignores it.
const DefaultRegion = "us-east-1"

// S3Options configures an S3ObjectStore.
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Host            string
	Region          string
	Secure          bool
}

// S3ObjectStore implements interfaces.ObjectStore on MOS or any other
// S3-compatible service.
type S3ObjectStore struct {
	client s3iface.S3API
	host   string
	log    *slog.Logger
}

// NewS3ObjectStore creates a client session for the configured endpoint.
// Requests use path-style addressing so bucket names never end up in the host.
func NewS3ObjectStore(opts S3Options, log *slog.Logger) (*S3ObjectStore, error) {
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	// Configure the SDK for the endpoint
	cfg := aws.Config{
		Region:           aws.String(region),
		Endpoint:         aws.String(host),
		DisableSSL:       aws.Bool(!opts.Secure),
		S3ForcePathStyle: aws.Bool(true),
	}

	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
		log.Warn("No MOS credentials provided - write operations may fail unless bucket is public writable")
	}

	// Create AWS session
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MOS session: %w", err)
	}

	return NewS3ObjectStoreWithClient(s3.New(sess), host, log), nil
}

// NewS3ObjectStoreWithClient wraps an existing S3 client.
func NewS3ObjectStoreWithClient(client s3iface.S3API, host string, log *slog.Logger) *S3ObjectStore {
	return &S3ObjectStore{
		client: client,
		host:   host,
		log:    log,
	}
}

// GetObject downloads an object. Returns an error matching interfaces.ErrNotFound
// if the object doesn't exist.
func (b *S3ObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()

	// Get object from S3
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			b.log.Debug("Object not found",
				slog.String("bucket", bucket),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		}

		b.log.Error("Failed to get object from S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	// Read object body
	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.log.Error("Failed to read object body",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err)
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched object",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// GetObjectRange opens the body of a ranged GET. The caller closes it.
func (b *S3ObjectStore) GetObjectRange(ctx context.Context, bucket, key string, byteRange interfaces.ByteRange) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if byteRange != interfaces.WholeObject {
		input.Range = aws.String(byteRange.Header())
	}

	// Open the ranged body; it is streamed by the caller
	result, err := b.client.GetObjectWithContext(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		}

		b.log.Error("Failed to get object range from S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("range", byteRange.Header()),
			"err", err)
		return nil, fmt.Errorf("failed to get object range: %w", err)
	}
	return result.Body, nil
}

// PutObject uploads body under key.
func (b *S3ObjectStore) PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker) error {
	start := time.Now()

	// Upload to S3
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		b.log.Error("Failed to upload object to S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to upload object: %w", err)
	}

	b.log.Debug("Stored object",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// DeleteObject removes key. S3 reports success for missing keys.
func (b *S3ObjectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	// Delete object from S3
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.log.Error("Failed to delete object from S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	b.log.Debug("Deleted object",
		slog.String("bucket", bucket),
		slog.String("key", key))
	return nil
}

// ListObjects returns one page of keys under prefix, starting after marker.
func (b *S3ObjectStore) ListObjects(ctx context.Context, bucket, prefix, marker string) (interfaces.ObjectPage, error) {
	input := &s3.ListObjectsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if marker != "" {
		input.Marker = aws.String(marker)
	}

	// List one page from S3
	result, err := b.client.ListObjectsWithContext(ctx, input)
	if err != nil {
		b.log.Error("Failed to list objects in S3",
			slog.String("bucket", bucket),
			slog.String("prefix", prefix),
			slog.String("marker", marker),
			"err", err)
		return interfaces.ObjectPage{}, fmt.Errorf("failed to list objects: %w", err)
	}

	page := interfaces.ObjectPage{Keys: make([]string, 0, len(result.Contents))}
	for _, obj := range result.Contents {
		page.Keys = append(page.Keys, aws.StringValue(obj.Key))
	}

	// NextMarker is only returned when a delimiter is set; fall back to the last key.
	if aws.BoolValue(result.IsTruncated) && len(page.Keys) > 0 {
		page.NextMarker = aws.StringValue(result.NextMarker)
		if page.NextMarker == "" {
			page.NextMarker = page.Keys[len(page.Keys)-1]
		}
	}

	return page, nil
}

// ObjectExists checks object presence with a HEAD request.
func (b *S3ObjectStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	// Check if object exists
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		// Callers retry existence checks, so a single failure is not an error yet.
		b.log.Warn("Failed to head object in S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err)
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

// ObjectSize returns the content length reported by a HEAD request.
// A missing object or a response without a length reports ok=false.
func (b *S3ObjectStore) ObjectSize(ctx context.Context, bucket, key string) (int64, bool, error) {
	// Get object metadata
	result, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}

		b.log.Error("Failed to head object in S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			"err", err)
		return 0, false, fmt.Errorf("failed to head object: %w", err)
	}
	if result.ContentLength == nil {
		return 0, false, nil
	}
	return *result.ContentLength, true, nil
}

// Name returns a unique identifier for this object store.
func (b *S3ObjectStore) Name() string {
	return fmt.Sprintf("s3-%s", b.host)
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
