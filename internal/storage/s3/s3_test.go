package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// fakeS3 keeps objects of a single bucket in memory. Methods the bucket
// does not use panic through the embedded nil interface.
type fakeS3 struct {
	s3iface.S3API

	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  int
}

func newFake() *fakeS3 { return &fakeS3{objects: map[string][]byte{}, pageSize: 2} }

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)
	for start := 0; start < len(keys) || start == 0; start += f.pageSize {
		end := start + f.pageSize
		if end > len(keys) {
			end = len(keys)
		}
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		last := end >= len(keys)
		if !fn(page, last) || last {
			return nil
		}
	}
	return nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) CopyObjectWithContext(_ aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	src := aws.StringValue(in.CopySource)
	src = src[strings.Index(src, "/")+1:]
	src, err := url.PathUnescape(src)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[src]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestBucketAgainstFake(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFake()
	b := New(api, "lake", "/out/")

	for _, k := range []string{"songs/year=2000/p0", "songs/year=2001/p0", "songs/_SUCCESS", "users/p0"} {
		require.NoError(t, b.Put(ctx, k, []byte(k)))
	}
	assert.Contains(t, api.objects, "out/songs/_SUCCESS")

	keys, err := b.List(ctx, "songs")
	require.NoError(t, err)
	assert.Equal(t, []string{"songs/_SUCCESS", "songs/year=2000/p0", "songs/year=2001/p0"}, keys)

	got, err := storage.ReadAll(ctx, b, "users/p0")
	require.NoError(t, err)
	assert.Equal(t, "users/p0", string(got))

	_, err = b.Open(ctx, "users/missing")
	assert.True(t, errors.Is(err, storage.ErrNotExist))

	require.NoError(t, b.Move(ctx, "users/p0", "users/name=a b/p0"))
	ok, err := b.Exists(ctx, "users/name=a b/p0")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.Exists(ctx, "users/p0")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "s3://lake/out/songs/_SUCCESS", b.URI("songs/_SUCCESS"))
}

func TestDeleteBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFake()
	b := New(api, "lake", "")
	keys := make([]string, deleteBatch+5)
	for i := range keys {
		keys[i] = "k/" + strings.Repeat("x", i%7) + string(rune('a'+i%26))
	}
	require.NoError(t, b.Delete(ctx, keys...))
	assert.Equal(t, 2, api.deletes)
}

func TestOpenRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := storage.Open(context.Background(), "s3a:///no-bucket", storage.Options{})
	require.Error(t, err)
}
