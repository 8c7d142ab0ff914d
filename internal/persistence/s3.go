package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 keeps the current state in <prefix>status.cf and history entries under
// <prefix>history/. A PutObject replaces an object atomically.
type S3 struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3 returns a backend using client.
func NewS3(client s3iface.S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// OpenS3 builds an S3 backend from the default AWS credential chain.
func OpenS3(bucket, prefix string) (*S3, error) {
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}

	return NewS3(s3.New(sess), bucket, prefix), nil
}

func (b *S3) String() string { return "s3://" + b.bucket + "/" + b.prefix }

func (b *S3) key(name string) string { return b.prefix + name }

// Load implements Backend.
func (b *S3) Load(ctx context.Context) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(currentName)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrNotFound
		}

		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Save implements Backend.
func (b *S3) Save(ctx context.Context, data []byte) error {
	return b.put(ctx, b.key(currentName), data)
}

// SaveSnapshot implements Backend.
func (b *S3) SaveSnapshot(ctx context.Context, timestamp string, data []byte) error {
	return b.put(ctx, b.key(historyDir+"/"+historyName(timestamp)), data)
}

func (b *S3) put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.bucket, key, err)
	}

	return nil
}
