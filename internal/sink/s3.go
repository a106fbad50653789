package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// DefaultS3Prefix is the key prefix used when none is configured.
	DefaultS3Prefix = "coding-snapshots"

	unknownSession = "unknown-session"
)

// PutObjectAPI is the subset of the S3 client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the object storage sink.
type S3Config struct {
	Bucket string
	Region string

	// Endpoint overrides the service endpoint for S3-compatible stores.
	// Path-style addressing is used when it is set.
	Endpoint string

	// Prefix is the first key segment (default: coding-snapshots).
	Prefix string

	// AccessKeyID and SecretAccessKey select static credentials. When either
	// is empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	Logger *log.Logger
}

// S3Sink uploads every record of a batch as its own text object.
//
// Keys have the form <prefix>/<session>/snapshots/<unix-millis>_<display-name>.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
	logger *log.Logger
}

// NewS3 builds an S3 client from cfg and returns a sink using it.
func NewS3(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
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
			o.UsePathStyle = true
		}
	})

	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient returns a sink that uploads through client.
func NewS3WithClient(client PutObjectAPI, cfg S3Config) *S3Sink {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultS3Prefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[s3] ", log.LstdFlags)
	}
	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		now:    time.Now,
		logger: logger,
	}
}

// Key returns the object key for a record uploaded at the given time.
func (s *S3Sink) Key(sessionID string, at time.Time, displayName string) string {
	if sessionID == "" {
		sessionID = unknownSession
	}
	return fmt.Sprintf("%s/%s/snapshots/%d_%s", s.prefix, sessionID, at.UnixMilli(), displayName)
}

// Send implements Sink. Every record is attempted; failures are joined.
func (s *S3Sink) Send(ctx context.Context, b *Batch) error {
	used := make(map[string]int, len(b.Records))
	var errs []error

	for _, r := range b.Records {
		at := s.now()
		base := s.Key(b.SessionID, at, r.DisplayName)
		key := base
		if n := used[base]; n > 0 {
			// same name uploaded twice within one millisecond
			key = s.Key(b.SessionID, at, strconv.Itoa(n)+"_"+r.DisplayName)
		}
		used[base]++

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        strings.NewReader(r.Patch),
			ContentType: aws.String("text/plain"),
		})
		if err != nil {
			s.logger.Printf("Failed to upload snapshot %s: %v", key, err)
			errs = append(errs, fmt.Errorf("failed to upload %s: %w", key, err))
			continue
		}
		s.logger.Printf("Uploaded snapshot to s3://%s/%s", s.bucket, key)
	}

	return errors.Join(errs...)
}
