package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Options configures an S3-compatible bucket (AWS, MinIO, R2).
type S3Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint is set for S3-compatible services and switches to path-style addressing.
	Endpoint string
	// PublicURL overrides the base URL used for public object links.
	PublicURL string
}

// S3Store implements ObjectStore on an S3 bucket.
type S3Store struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3Store builds the client and makes sure the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if opts.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := newS3Store(client, opts)
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newS3Store(client s3API, opts S3Options) *S3Store {
	publicURL := opts.PublicURL
	switch {
	case publicURL != "":
	case opts.Endpoint != "":
		publicURL = strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
	default:
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}
	return &S3Store{client: client, bucket: opts.Bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// List pages through ListObjectsV2 using "/" as delimiter.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	objects := make([]Object, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3 objects under %s: %w", prefix, err)
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, Object{
				Key:       key,
				Name:      baseName(key),
				Size:      aws.ToInt64(item.Size),
				UpdatedAt: aws.ToTime(item.LastModified),
			})
		}
	}
	return objects, nil
}

// Download fetches the object body.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get s3 object %s: %w", key, err)
	}
	defer out.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object %s: %w", key, err)
	}
	return data, nil
}

// Upload puts the object. Without upsert an existing key is refused.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if !upsert {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
		if err == nil {
			return ErrObjectExists
		}
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("head s3 object %s: %w", key, err)
		}
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return nil
}

// Delete removes keys in batches of 1000.
func (s *S3Store) Delete(ctx context.Context, keys ...string) error {
	const batch = 1000
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete s3 objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete s3 object %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// PublicURL returns the unsigned object URL.
func (s *S3Store) PublicURL(key string) string {
	return publicObjectURL(s.publicURL, key)
}

// KeyForURL reverses PublicURL.
func (s *S3Store) KeyForURL(rawURL string) (string, bool) {
	return keyFromPublicURL(s.publicURL, rawURL)
}
