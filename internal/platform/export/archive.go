package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver stores a rendered export and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, name string, body []byte) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes private CSV objects under prefix in bucket.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

func NewS3Archiver(client *s3.Client, bucket, prefix string) *S3Archiver {
	return newS3Archiver(client, bucket, prefix)
}

func newS3Archiver(client objectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archiver) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

func (a *S3Archiver) Archive(ctx context.Context, name string, body []byte) (string, error) {
	key := a.Key(name)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ContentTypeCSV),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
