// Package storage uploads tool photos and event documents to S3-compatible
// object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"logbook/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchSize is the S3 DeleteObjects limit.
const deleteBatchSize = 1000

// Objects is what the lifecycle and registry code needs from storage.
type Objects interface {
	Upload(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, bucket string, keys []string) error
}

type S3Storage struct {
	client        *s3.Client
	region        string
	endpoint      string
	pathStyle     bool
	publicBaseURL string
}

type S3Options struct {
	Region        string
	Endpoint      string // optional, e.g. MinIO
	PathStyle     bool
	PublicBaseURL string // optional CDN or bucket website base
	MaxAttempts   int
}

func NewS3Storage(awsConfig aws.Config, opts S3Options) *S3Storage {
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if opts.Region != "" {
			o.Region = opts.Region
		}
		if opts.PathStyle {
			o.UsePathStyle = true
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.MaxAttempts > 0 {
			o.Retryer = retry.AddWithMaxAttempts(retry.NewStandard(), opts.MaxAttempts)
		}
	})

	return newS3Storage(client, opts)
}

func newS3Storage(client *s3.Client, opts S3Options) *S3Storage {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	return &S3Storage{
		client:        client,
		region:        region,
		endpoint:      strings.TrimSuffix(opts.Endpoint, "/"),
		pathStyle:     opts.PathStyle,
		publicBaseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
	}
}

// Upload stores body under key and returns its public URL.
func (s *S3Storage) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s/%s: %w", types.ErrStorage, bucket, key, err)
	}

	return s.PublicURL(bucket, key), nil
}

// Delete removes keys from bucket in batches. Missing keys are not an error.
func (s *S3Storage) Delete(ctx context.Context, bucket string, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("%w: delete %d objects from %s: %w", types.ErrStorage, len(objects), bucket, err)
		}

		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("%w: delete %s/%s: %s", types.ErrStorage, bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return nil
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// List returns every object in bucket whose key starts with prefix.
func (s *S3Storage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s/%s: %w", types.ErrStorage, bucket, prefix, err)
		}

		for _, object := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(object.Key),
				Size:         aws.ToInt64(object.Size),
				LastModified: aws.ToTime(object.LastModified),
			})
		}
	}

	return objects, nil
}

func (s *S3Storage) PublicURL(bucket, key string) string {
	escaped := escapeKey(key)

	switch {
	case s.publicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, bucket, escaped)
	case s.endpoint != "" && s.pathStyle:
		return fmt.Sprintf("%s/%s/%s", s.endpoint, bucket, escaped)
	case s.endpoint != "":
		u, err := url.Parse(s.endpoint)
		if err != nil {
			return fmt.Sprintf("%s/%s/%s", s.endpoint, bucket, escaped)
		}
		return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, bucket, u.Host, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
