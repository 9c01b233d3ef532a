package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	deleted []string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	prefix := aws.ToString(in.Prefix)
	for key, data := range f.objects {
		rest := strings.TrimPrefix(key, prefix)
		if strings.HasPrefix(key, prefix) && rest != "" && !strings.Contains(rest, "/") {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data)))})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		f.deleted = append(f.deleted, aws.ToString(obj.Key))
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, nil
}

func TestS3StoreOperations(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.objects["sub-1/a.jpg"] = []byte("aa")
	fake.objects["sub-1/deep/b.jpg"] = []byte("b")
	fake.objects["sub-2/c.jpg"] = []byte("c")
	store := newS3Store(fake, S3Options{Bucket: "files", Endpoint: "http://minio:9000"})

	objects, err := store.List(ctx, "sub-1/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a.jpg", objects[0].Name)

	_, err = store.Download(ctx, "sub-1/zzz.jpg")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	err = store.Upload(ctx, "sub-1/a.jpg", []byte("new"), "", false)
	assert.True(t, errors.Is(err, ErrObjectExists))

	require.NoError(t, store.Upload(ctx, "archives/x.zip", []byte("PK"), "application/zip", true))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "application/zip", aws.ToString(fake.puts[0].ContentType))

	require.NoError(t, store.Delete(ctx, "sub-1/a.jpg", "archives/x.zip"))
	assert.ElementsMatch(t, []string{"sub-1/a.jpg", "archives/x.zip"}, fake.deleted)
}

func TestS3StorePublicURL(t *testing.T) {
	store := newS3Store(newFakeS3(), S3Options{Bucket: "files", Region: "eu-west-3"})
	assert.Equal(t, "https://files.s3.eu-west-3.amazonaws.com/archives/a.zip", store.PublicURL("archives/a.zip"))

	store = newS3Store(newFakeS3(), S3Options{Bucket: "files", PublicURL: "https://cdn.example.fr/files"})
	key, ok := store.KeyForURL("https://cdn.example.fr/files/sub-1/a%20b.jpg")
	require.True(t, ok)
	assert.Equal(t, "sub-1/a b.jpg", key)
}
