package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/retry"
)

// S3Client abstracts the S3 API operations used by S3Store.
// *s3.Client satisfies this interface.
type S3Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config describes the bucket and how to reach it.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	PublicBaseURL   string

	// PageSize bounds keys per ListObjectsV2 call. Zero uses the server default.
	PageSize int32

	Retry retry.Policy
}

// S3Store implements Store on any S3-compatible service (R2, MinIO, S3).
type S3Store struct {
	client S3Client
	cfg    Config
	urls   URLBuilder
	logger *slog.Logger
}

// NewS3Client builds an *s3.Client for cfg with path-style addressing and
// static credentials. Retries are left to S3Store.
func NewS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "imagesearch",
		}, nil
	})

	opts := s3.Options{
		Region:       region,
		Credentials:  aws.NewCredentialsCache(creds),
		UsePathStyle: true,
		Retryer:      aws.NopRetryer{},
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// NewS3 creates a Store over client. A zero cfg.Retry uses retry.Default.
func NewS3(client S3Client, cfg Config, logger *slog.Logger) *S3Store {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Default
	}
	return &S3Store{
		client: client,
		cfg:    cfg,
		urls:   URLBuilder(cfg.PublicBaseURL),
		logger: logger,
	}
}

func (s *S3Store) Bucket() string { return s.cfg.Bucket }

func (s *S3Store) PublicURL(key string) string { return s.urls.URL(key) }

// ListPage returns one page of image keys. Keys that are not images, and the
// prefix entry itself, are dropped, so a page may come back empty while
// NextToken is still set.
func (s *S3Store) ListPage(ctx context.Context, token string) (Page, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	if s.cfg.PageSize > 0 {
		in.MaxKeys = aws.Int32(s.cfg.PageSize)
	}

	out, err := retry.Value(ctx, s.cfg.Retry, errdefs.IsTransient, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
		out, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, s.classify(ctx, "listing "+s.cfg.Bucket, err)
		}
		return out, nil
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{Keys: make([]string, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if !IsImageKey(s.cfg.Prefix, key) {
			continue
		}
		page.Keys = append(page.Keys, key)
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	s.logger.Debug("listed page", "bucket", s.cfg.Bucket, "keys", len(page.Keys), "truncated", page.NextToken != "")
	return page, nil
}

func (s *S3Store) Keys(ctx context.Context) iter.Seq2[string, error] {
	return Walk(ctx, s)
}

// Fetch downloads key. A missing key yields errdefs.ErrNotFound and is not
// retried.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	return retry.Value(ctx, s.cfg.Retry, errdefs.IsTransient, func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, s.classify(ctx, "fetching "+key, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, s.classify(ctx, "reading "+key, err)
		}
		return data, nil
	})
}

// classify maps an S3 failure onto the error taxonomy.
func (s *S3Store) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if isS3NotFound(err) {
		return fmt.Errorf("%s: %w", op, errdefs.ErrNotFound)
	}
	if isTransient(err) {
		s.logger.Warn("object store call failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, errdefs.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// isTransient treats server faults, throttling and transport errors as
// retryable. Client faults such as AccessDenied are not.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.ErrorCode() {
	case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError", "Throttling":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}

var _ Store = (*S3Store)(nil)
