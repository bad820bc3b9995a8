package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store stores snapshots in an S3 bucket.
//
// Example usage:
//
//	client := snapshot.NewS3Client(snapshot.S3Options{Region: "eu-west-1"})
//	store := snapshot.NewS3Store(client, "my-bucket", "demo/", 0)
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	maxSize int64
	now     func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates a new S3 snapshot store.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: Key prefix for snapshots (e.g., "snapshots/demo/")
//   - maxSize: Maximum snapshot size in bytes (0 = no limit)
func NewS3Store(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region string

	// Endpoint selects an S3-compatible service such as MinIO. Requests
	// then use path-style addressing.
	Endpoint string
}

// NewS3Client builds an S3 client from options. Credentials are taken from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN; without
// them requests are sent unsigned.
func NewS3Client(opts S3Options) *s3.Client {
	return s3.New(s3.Options{
		Region:      opts.Region,
		Credentials: envCredentials(),
	}, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
}

func envCredentials() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	creds := aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return creds, nil
	})
}

// Put uploads markup as a new object.
func (s *S3Store) Put(ctx context.Context, name string, markup []byte) (string, error) {
	if s.maxSize > 0 && int64(len(markup)) > s.maxSize {
		return "", ErrTooLarge
	}
	now := s.now()
	key, err := NewKey(name, now)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + key),
		Body:          bytes.NewReader(markup),
		ContentLength: aws.Int64(int64(len(markup))),
		ContentType:   aws.String(ContentType),
		Metadata: map[string]string{
			"snapshot-name": name,
			"capture-time":  now.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: s3 put %s: %w", key, err)
	}
	return key, nil
}

// Get downloads a stored snapshot.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List pages through the prefix and returns the snapshots under it,
// oldest first.
func (s *S3Store) List(ctx context.Context) ([]Info, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var out []Info
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := strings.TrimPrefix(*obj.Key, s.prefix)
			_, created, err := ParseKey(key)
			if err != nil {
				continue
			}
			out = append(out, Info{Key: key, Size: aws.ToInt64(obj.Size), CreatedAt: created})
		}
	}
	sortInfos(out)
	return out, nil
}

// Cleanup deletes snapshots captured before now minus maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.prefix + info.Key),
		})
		if err != nil {
			return removed, fmt.Errorf("snapshot: s3 delete %s: %w", info.Key, err)
		}
		removed++
	}
	return removed, nil
}
