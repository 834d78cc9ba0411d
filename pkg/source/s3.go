package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// DefaultS3MaxBytes caps a single S3 document read.
const DefaultS3MaxBytes = 50 << 20

// S3Config configures access to AWS S3 or an S3-compatible store.
//
// Authentication follows the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set. For S3-compatible stores (MinIO, Wasabi),
// set Endpoint and usually ForcePathStyle; no default region is applied
// when Endpoint is set.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Validate checks that explicit credentials come in pairs.
func (c S3Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &sdkerr.ConfigurationError{
			Field:   "S3.AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// S3GetObjectAPI is the slice of the S3 client used to read documents.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &SourceError{Op: "NewS3Client", Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// resolveRegion applies the us-east-1 fallback for AWS S3 only.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

// S3InputSource reads a document from an S3 object.
type S3InputSource struct {
	Client S3GetObjectAPI
	Bucket string
	Key    string

	// MaxBytes caps the read. Zero uses DefaultS3MaxBytes.
	MaxBytes int64
}

// NewS3InputSource returns a source for s3://bucket/key.
func NewS3InputSource(client S3GetObjectAPI, bucket, key string) *S3InputSource {
	return &S3InputSource{Client: client, Bucket: bucket, Key: key}
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3:// URI", ErrInvalidSource, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q must name a bucket and key", ErrInvalidSource, uri)
	}
	return bucket, key, nil
}

// Describe implements InputSource.
func (s *S3InputSource) Describe() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

// Open implements InputSource.
func (s *S3InputSource) Open(ctx context.Context) (*Document, error) {
	if s.Client == nil {
		return nil, &sdkerr.ConfigurationError{Field: "S3InputSource.Client", Message: "required"}
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, s.wrapError("Open", err)
	}
	defer func() { _ = out.Body.Close() }()

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultS3MaxBytes
	}
	content, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, s.wrapError("Open", err)
	}
	if int64(len(content)) > limit {
		return nil, &SourceError{Op: "Open", Source: s.Describe(), Err: fmt.Errorf("%w: object exceeds %d bytes", ErrInvalidSource, limit)}
	}

	doc, err := newDocument("Open", s.Describe(), path.Base(s.Key), content)
	if err != nil {
		return nil, err
	}
	// Trust a specific stored content type over extension sniffing.
	if ct := aws.ToString(out.ContentType); SupportedMimeTypes[ct] {
		doc.MimeType = ct
	}
	return doc, nil
}

// wrapError maps S3 failures onto the source sentinels.
func (s *S3InputSource) wrapError(op string, err error) error {
	wrapped := &SourceError{Op: op, Source: s.Describe(), Err: err}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound), errors.As(err, &noSuchBucket):
		wrapped.Err = ErrNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			wrapped.Err = ErrNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = ErrUnavailable
		}
	}
	return wrapped
}

// S3ListObjectsAPI is the slice of the S3 client used to expand patterns.
type S3ListObjectsAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3API reads and lists objects.
type S3API interface {
	S3GetObjectAPI
	S3ListObjectsAPI
}

// GlobS3 expands s3://bucket/<pattern> into object sources, in key order.
// Listing starts at the literal prefix of the pattern; keys are then matched
// with doublestar semantics. Keys ending in "/" are skipped.
func GlobS3(ctx context.Context, client S3API, uri string) ([]InputSource, error) {
	bucket, pattern, err := ParseS3URI(uri)
	if err != nil {
		return nil, &SourceError{Op: "GlobS3", Source: uri, Err: err}
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, &SourceError{Op: "GlobS3", Source: uri, Err: fmt.Errorf("%w: bad pattern", ErrInvalidSource)}
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix := literalPrefix(pattern); prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	lister := &S3InputSource{Bucket: bucket}
	var out []InputSource
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, lister.wrapError("GlobS3", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if ok, _ := doublestar.Match(pattern, key); ok {
				out = append(out, NewS3InputSource(client, bucket, key))
			}
		}
	}
	return out, nil
}

// literalPrefix returns the pattern up to the last "/" before the first
// glob metacharacter.
func literalPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[{\\")
	if idx < 0 {
		return pattern
	}
	if slash := strings.LastIndex(pattern[:idx], "/"); slash >= 0 {
		return pattern[:slash+1]
	}
	return ""
}
