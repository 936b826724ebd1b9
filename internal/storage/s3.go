package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// MaxURLTTL is the longest validity a SigV4 presigned URL can have
const MaxURLTTL = 7 * 24 * time.Hour

// Config holds object storage settings
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	URLTTL   time.Duration
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Uploader stores blobs in a bucket and hands out presigned download URLs
type S3Uploader struct {
	putter    objectPutter
	presigner objectPresigner
	bucket    string
	ttl       time.Duration
	newKey    func() string
	logger    *logrus.Logger
}

// NewS3Uploader creates an uploader using the default AWS credential chain
func NewS3Uploader(ctx context.Context, cfg Config, logger *logrus.Logger) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
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

	return newS3Uploader(client, s3.NewPresignClient(client), cfg, logger), nil
}

func newS3Uploader(putter objectPutter, presigner objectPresigner, cfg Config, logger *logrus.Logger) *S3Uploader {
	ttl := cfg.URLTTL
	if ttl <= 0 || ttl > MaxURLTTL {
		ttl = MaxURLTTL
	}

	return &S3Uploader{
		putter:    putter,
		presigner: presigner,
		bucket:    cfg.Bucket,
		ttl:       ttl,
		newKey:    uuid.NewString,
		logger:    logger,
	}
}

// Upload stores the blob under a fresh key and returns a presigned GET URL
func (u *S3Uploader) Upload(ctx context.Context, blob *models.Blob) (string, error) {
	f, err := os.Open(blob.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	key := u.newKey() + blob.Extension
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if blob.ContentType != "" {
		input.ContentType = aws.String(blob.ContentType)
	}
	if blob.Size > 0 {
		input.ContentLength = aws.Int64(blob.Size)
	}

	if _, err := u.putter.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	req, err := u.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	u.logger.WithFields(logrus.Fields{
		"bucket": u.bucket,
		"key":    key,
		"size":   blob.Size,
	}).Info("Uploaded announcement content")

	return req.URL, nil
}
