// Package local implements storage.Bucket on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

func init() {
	storage.Register("file", func(_ context.Context, u *url.URL, _ storage.Options) (storage.Bucket, error) {
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = filepath.Join(u.Host, p)
		}
		return New(p)
	})
}

// Bucket is a directory tree. Keys map to paths below root.
type Bucket struct{ root string }

// New returns a bucket rooted at dir. The directory need not exist yet.
func New(dir string) (*Bucket, error) {
	if dir == "" {
		return nil, fmt.Errorf("local: empty root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local: resolve %s: %w", dir, err)
	}
	return &Bucket{root: abs}, nil
}

func (b *Bucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *Bucket) List(ctx context.Context, dir string) ([]string, error) {
	start := b.path(dir)
	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list %s: %w", start, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local: open %s: %w", b.path(key), storage.ErrNotExist)
		}
		return nil, fmt.Errorf("local: open %s: %w", b.path(key), err)
	}
	return f, nil
}

// Put writes through a temp file and a rename so readers never see a
// partial object.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local: mkdir for %s: %w", dst, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("local: put %s: %w", dst, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("local: put %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: put %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: put %s: %w", dst, err)
	}
	return nil
}

// Delete removes keys and prunes directories left empty, stopping at root.
func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := b.path(k)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("local: delete %s: %w", p, err)
		}
		b.prune(filepath.Dir(p))
	}
	return nil
}

func (b *Bucket) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, to := b.path(src), b.path(dst)
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("local: mkdir for %s: %w", to, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("local: move %s -> %s: %w", from, to, err)
	}
	b.prune(filepath.Dir(from))
	return nil
}

func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(b.path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("local: stat %s: %w", b.path(key), err)
	}
}

func (b *Bucket) URI(key string) string {
	if key == "" {
		return b.root
	}
	return b.path(key)
}

// prune removes empty directories from dir upwards. Errors are ignored: a
// non-empty or vanished directory simply ends the walk.
func (b *Bucket) prune(dir string) {
	for dir != b.root && strings.HasPrefix(dir, b.root+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
