package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

type fakeBucket struct {
	putErr  error
	key     string
	body    []byte
	ctype   string
	expires time.Duration
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	b.key = *in.Key
	if in.ContentType != nil {
		b.ctype = *in.ContentType
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.body = body
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	b.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".example/" + *in.Key + "?signed"}, nil
}

func newTestUploader(t *testing.T, bucket *fakeBucket, ttl time.Duration) *S3Uploader {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	u := newS3Uploader(bucket, bucket, Config{Bucket: "announcements", URLTTL: ttl}, logger)
	u.newKey = func() string { return "fixed" }
	return u
}

func writeBlob(t *testing.T, content string) *models.Blob {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return &models.Blob{Path: path, ContentType: "image/jpeg", Extension: ".jpg", Size: int64(len(content))}
}

func TestUpload(t *testing.T) {
	bucket := &fakeBucket{}
	u := newTestUploader(t, bucket, time.Hour)

	url, err := u.Upload(context.Background(), writeBlob(t, "jpeg bytes"))
	require.NoError(t, err)

	assert.Equal(t, "https://announcements.example/fixed.jpg?signed", url)
	assert.Equal(t, "fixed.jpg", bucket.key)
	assert.Equal(t, "image/jpeg", bucket.ctype)
	assert.Equal(t, []byte("jpeg bytes"), bucket.body)
	assert.Equal(t, time.Hour, bucket.expires)
}

func TestUpload_TTLIsCapped(t *testing.T) {
	for _, ttl := range []time.Duration{0, 30 * 24 * time.Hour} {
		bucket := &fakeBucket{}
		u := newTestUploader(t, bucket, ttl)

		_, err := u.Upload(context.Background(), writeBlob(t, "x"))
		require.NoError(t, err)
		assert.Equal(t, MaxURLTTL, bucket.expires)
	}
}

func TestUpload_PutFailure(t *testing.T) {
	bucket := &fakeBucket{putErr: errors.New("access denied")}
	u := newTestUploader(t, bucket, time.Hour)

	_, err := u.Upload(context.Background(), writeBlob(t, "x"))
	require.Error(t, err)
	assert.Zero(t, bucket.expires)
}

func TestUpload_MissingFile(t *testing.T) {
	u := newTestUploader(t, &fakeBucket{}, time.Hour)

	_, err := u.Upload(context.Background(), &models.Blob{Path: filepath.Join(t.TempDir(), "gone")})
	require.Error(t, err)
}
