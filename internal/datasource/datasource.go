// Package datasource resolves raw input objects in a bucket.
package datasource

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// Source is one raw input object.
type Source interface {
	// Name identifies the source in errors and logs.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Object is a Source backed by a bucket key.
type Object struct {
	bucket storage.Bucket
	key    string
}

// NewObject returns the Source for key in b.
func NewObject(b storage.Bucket, key string) *Object { return &Object{bucket: b, key: key} }

func (o *Object) Name() string { return o.bucket.URI(o.key) }

// Key returns the bucket key of o.
func (o *Object) Key() string { return o.key }

func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.bucket.Open(ctx, o.key)
}

// GlobOptions tunes Glob.
type GlobOptions struct {
	// Recursive also takes every object below a path the pattern matches,
	// not only objects the pattern matches exactly.
	Recursive bool
}

// Glob returns the objects of b whose keys match pattern, sorted by key.
//
// Patterns are slash separated and use path.Match syntax per segment; a
// segment never matches across "/". Keys with a segment starting with "_" or
// "." are hidden (commit markers, staging areas, editor files) and skipped.
// No match is not an error: the caller decides whether empty input is fatal.
func Glob(ctx context.Context, b storage.Bucket, pattern string, opt GlobOptions) ([]*Object, error) {
	pattern = strings.Trim(pattern, "/")
	pat := strings.Split(pattern, "/")
	for _, p := range pat {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("datasource: bad pattern %q: %w", pattern, err)
		}
	}

	// List from the longest literal prefix.
	var lit []string
	for _, p := range pat {
		if strings.ContainsAny(p, `*?[\`) {
			break
		}
		lit = append(lit, p)
	}
	keys, err := b.List(ctx, strings.Join(lit, "/"))
	if err != nil {
		return nil, fmt.Errorf("datasource: list %s: %w", b.URI(strings.Join(lit, "/")), err)
	}

	var out []*Object
	for _, k := range keys {
		if match(pat, strings.Split(k, "/"), opt.Recursive) {
			out = append(out, NewObject(b, k))
		}
	}
	return out, nil
}

func match(pat, segs []string, recursive bool) bool {
	if len(segs) < len(pat) || (!recursive && len(segs) != len(pat)) {
		return false
	}
	for _, s := range segs {
		if strings.HasPrefix(s, "_") || strings.HasPrefix(s, ".") {
			return false
		}
	}
	for i, p := range pat {
		if ok, _ := path.Match(p, segs[i]); !ok {
			return false
		}
	}
	return true
}
