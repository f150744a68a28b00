// Package s3blob implements blob.Store on Amazon S3 or an S3-compatible
// server such as MinIO.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/blob"
	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

const defaultURLTTL = 7 * 24 * time.Hour

// Options configures the bucket connection.
type Options struct {
	Region string
	Bucket string
	// Endpoint overrides the S3 endpoint (MinIO, localstack); path-style
	// addressing is used when set.
	Endpoint string
	// URLTTL is the lifetime of presigned download URLs.
	URLTTL time.Duration
}

// Store uploads through the multipart manager and serves presigned GET URLs.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	ttl      time.Duration
	log      *zap.Logger
}

var _ blob.Store = (*Store)(nil)

// New loads the default AWS credential chain and connects to the bucket.
func New(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg, opts, log)
}

// NewWithConfig builds a Store from an explicit aws.Config.
func NewWithConfig(cfg aws.Config, opts Options, log *zap.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket: %w", errs.ErrInvalidArgument)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = defaultURLTTL
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			// S3-compatible servers lag behind on default request checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   opts.Bucket,
		ttl:      opts.URLTTL,
		log:      log,
	}, nil
}

// Put uploads data under objectPath.
func (s *Store) Put(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if objectPath == "" {
		return fmt.Errorf("blob path: %w", errs.ErrInvalidArgument)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		s.log.Error("s3 upload", zap.String("key", objectPath), zap.Error(err))
		return fmt.Errorf("upload %s: %w: %v", objectPath, errs.ErrWriteFailed, err)
	}
	s.log.Debug("s3 uploaded", zap.String("key", objectPath), zap.Int("bytes", len(data)))
	return nil
}

// DownloadURL checks the object exists and returns a presigned GET URL.
func (s *Store) DownloadURL(ctx context.Context, objectPath string) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("blob %s: %w", objectPath, errs.ErrNotFound)
		}
		return "", fmt.Errorf("head %s: %w", objectPath, err)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectPath, err)
	}
	return req.URL, nil
}
