// Package s3 implements storage.Bucket on Amazon S3 and S3-compatible stores.
//
// The Hadoop spellings s3a:// and s3n:// are accepted as aliases of s3://.
// S3 has no rename, so Move is a server-side copy followed by a delete.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// deleteBatch is the DeleteObjects limit.
const deleteBatch = 1000

func init() {
	for _, scheme := range []string{"s3", "s3a", "s3n"} {
		storage.Register(scheme, open)
	}
}

func open(_ context.Context, u *url.URL, opt storage.Options) (storage.Bucket, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("s3: location %q has no bucket", u.String())
	}
	cfg := &aws.Config{}
	if opt.Region != "" {
		cfg.Region = aws.String(opt.Region)
	}
	if opt.Endpoint != "" {
		cfg.Endpoint = aws.String(opt.Endpoint)
	}
	if opt.PathStyle {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if c := opt.Credentials; c.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "s3: new session")
	}
	return New(s3.New(sess), u.Host, u.Path), nil
}

// Bucket is a key prefix inside one S3 bucket.
type Bucket struct {
	api    s3iface.S3API
	bucket string
	prefix string
}

// New returns a Bucket over api rooted at prefix within bucket.
func New(api s3iface.S3API, bucket, prefix string) *Bucket {
	return &Bucket{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *Bucket) key(k string) string {
	return storage.Join(b.prefix, k)
}

func (b *Bucket) rel(full string) string {
	if b.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, b.prefix+"/")
}

func (b *Bucket) List(ctx context.Context, dir string) ([]string, error) {
	prefix := b.key(dir)
	if prefix != "" {
		prefix += "/"
	}
	var keys []string
	err := b.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			k := aws.StringValue(obj.Key)
			// Zero-byte "directory" markers written by some tools.
			if strings.HasSuffix(k, "/") {
				continue
			}
			keys = append(keys, b.rel(k))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: list s3://%s/%s", b.bucket, prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3: get %s: %w", b.URI(key), storage.ErrNotExist)
		}
		return nil, errors.Wrapf(err, "s3: get %s", b.URI(key))
	}
	return out.Body, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "s3: put %s", b.URI(key))
}

func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		objs := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objs = append(objs, &s3.ObjectIdentifier{Key: aws.String(b.key(k))})
		}
		out, err := b.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &s3.Delete{Objects: objs, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Wrapf(err, "s3: delete %d objects under s3://%s/%s", len(objs), b.bucket, b.prefix)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3: delete %s: %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Code), aws.StringValue(e.Message))
		}
	}
	return nil
}

func (b *Bucket) Move(ctx context.Context, src, dst string) error {
	_, err := b.api.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(url.PathEscape(b.bucket) + "/" + escapeKey(b.key(src))),
		Key:        aws.String(b.key(dst)),
	})
	if err != nil {
		return errors.Wrapf(err, "s3: copy %s -> %s", b.URI(src), b.URI(dst))
	}
	return b.Delete(ctx, src)
}

func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "s3: head %s", b.URI(key))
}

func (b *Bucket) URI(key string) string {
	return "s3://" + b.bucket + "/" + b.key(key)
}

// escapeKey URL-encodes each segment of a key for CopySource.
func escapeKey(k string) string {
	segs := strings.Split(k, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
