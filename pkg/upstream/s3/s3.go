// Package s3 implements upstream.Client on an S3-compatible object store.
//
// Each worker credential is one access key. Item <iid> of container <cid>
// is the object "<prefix><cid>/<iid>"; its display name comes from the
// "filename" user metadata, falling back to the key's last segment.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// Config holds configuration for one S3 worker client.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible services

	// KeyPrefix is prepended to every object key. Should end with "/" if
	// non-empty.
	KeyPrefix string

	// AccessKeyID and SecretAccessKey identify this worker. When empty the
	// SDK default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (MinIO, Localstack).
	ForcePathStyle bool

	// MaxAttempts is the SDK's own attempt count per call. Kept at 1 by
	// default so the streaming engine's retry budget is exact.
	MaxAttempts int

	// ReadTimeout bounds the wait for each chunk of a stream.
	ReadTimeout time.Duration

	// RateLimitWait is used when a throttling response carries no
	// Retry-After header.
	RateLimitWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.RateLimitWait <= 0 {
		c.RateLimitWait = 5 * time.Second
	}
}

// Client is an upstream.Client over S3.
type Client struct {
	client        *s3.Client
	bucket        string
	keyPrefix     string
	readTimeout   time.Duration
	rateLimitWait time.Duration
}

// New wraps an existing S3 client.
func New(client *s3.Client, cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		client:        client,
		bucket:        cfg.Bucket,
		keyPrefix:     cfg.KeyPrefix,
		readTimeout:   cfg.ReadTimeout,
		rateLimitWait: cfg.RateLimitWait,
	}
}

// NewFromConfig builds the SDK client from cfg.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 upstream: bucket is required")
	}
	cfg.applyDefaults()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		o.RetryMaxAttempts = cfg.MaxAttempts
	})

	return New(client, cfg), nil
}

// objectKey returns "<prefix><cid>/<iid>".
func (c *Client) objectKey(containerID, itemID int64) string {
	return c.keyPrefix + strconv.FormatInt(containerID, 10) + "/" + strconv.FormatInt(itemID, 10)
}

func (c *Client) FetchMetadata(ctx context.Context, containerID, itemID int64) (upstream.FileInfo, error) {
	key := c.objectKey(containerID, itemID)
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return upstream.FileInfo{}, c.classify("head", err)
	}

	name := out.Metadata["filename"]
	if name == "" {
		name = path.Base(key)
	}
	mimeType := aws.ToString(out.ContentType)
	if mimeType == "binary/octet-stream" || mimeType == "application/octet-stream" {
		mimeType = ""
	}

	return upstream.FileInfo{
		Name:     name,
		Size:     aws.ToInt64(out.ContentLength),
		MimeType: mimeType,
	}, nil
}

func (c *Client) OpenChunkStream(ctx context.Context, containerID, itemID, chunkIndex int64) (upstream.ChunkStream, error) {
	key := c.objectKey(containerID, itemID)
	offset := chunkIndex * chunk.Size

	// The body is read after OpenChunkStream returns, so the request runs on
	// its own context that Close and the read timeout can cancel.
	streamCtx, cancel := context.WithCancel(ctx)

	out, err := c.client.GetObject(streamCtx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-", offset)),
	})
	if err != nil {
		cancel()
		return nil, c.classify("get", err)
	}

	logger.Debug("S3 stream opened",
		logger.KeyBucket, c.bucket,
		logger.KeyKey, key,
		logger.KeyChunkIndex, chunkIndex)

	return &chunkStream{
		client:  c,
		body:    out.Body,
		cancel:  cancel,
		timeout: c.readTimeout,
	}, nil
}

// HealthCheck verifies the bucket is reachable with this credential.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// classify maps SDK errors onto the upstream error taxonomy.
func (c *Client) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("s3 %s: %w", op, upstream.ErrTimedOut)
	}

	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return upstream.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return upstream.ErrNotFound
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			return &upstream.RateLimitedError{Wait: c.retryAfter(err)}
		case "RequestTimeout", "RequestTimeoutException":
			return fmt.Errorf("s3 %s: %w", op, upstream.ErrTimedOut)
		default:
			return &upstream.RPCError{Op: op, Detail: apiErr.ErrorCode() + ": " + apiErr.ErrorMessage(), Err: err}
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusTooManyRequests {
		return &upstream.RateLimitedError{Wait: c.retryAfter(err)}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("s3 %s: %w", op, upstream.ErrTimedOut)
	}

	return &upstream.RPCError{Op: op, Err: err}
}

// retryAfter reads the Retry-After header (seconds) from a failed response.
func (c *Client) retryAfter(err error) time.Duration {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.Response != nil {
		if v := strings.TrimSpace(respErr.Response.Header.Get("Retry-After")); v != "" {
			if secs, perr := strconv.Atoi(v); perr == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return c.rateLimitWait
}

// chunkStream cuts a GetObject body into chunk.Size pieces.
type chunkStream struct {
	client  *Client
	body    io.ReadCloser
	cancel  context.CancelFunc
	timeout time.Duration

	done      bool
	closeOnce sync.Once
}

func (s *chunkStream) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(s.timeout, func() {
		timedOut.Store(true)
		s.cancel()
	})
	stop := context.AfterFunc(ctx, s.cancel)

	buf := make([]byte, chunk.Size)
	n, err := io.ReadFull(s.body, buf)

	timer.Stop()
	stop()

	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return buf[:n], nil
	case timedOut.Load():
		s.done = true
		return nil, fmt.Errorf("s3 read: %w", upstream.ErrTimedOut)
	case ctx.Err() != nil:
		s.done = true
		return nil, ctx.Err()
	default:
		s.done = true
		return nil, s.client.classify("read", err)
	}
}

func (s *chunkStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.cancel()
	})
	return err
}

var (
	_ upstream.Client        = (*Client)(nil)
	_ upstream.HealthChecker = (*Client)(nil)
)
