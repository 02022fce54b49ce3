// Package memory implements storage.Bucket in process memory. It backs
// dry runs and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

var (
	namedMu sync.Mutex
	named   = map[string]*Bucket{}
)

func init() {
	// mem://name resolves to the same bucket for the life of the process.
	storage.Register("mem", func(_ context.Context, u *url.URL, _ storage.Options) (storage.Bucket, error) {
		namedMu.Lock()
		defer namedMu.Unlock()
		b, ok := named[u.Host]
		if !ok {
			b = New()
			b.name = u.Host
			named[u.Host] = b
		}
		return b, nil
	})
}

// Bucket is a map of keys to contents.
type Bucket struct {
	name string
	mu   sync.RWMutex
	objs map[string][]byte
}

// New returns an empty bucket.
func New() *Bucket { return &Bucket{objs: map[string][]byte{}} }

func (b *Bucket) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objs[key]
	if !ok {
		return nil, fmt.Errorf("memory: open %s: %w", key, storage.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objs[key] = bytes.Clone(data)
	return nil
}

func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.objs, k)
	}
	return nil
}

func (b *Bucket) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objs[src]
	if !ok {
		return fmt.Errorf("memory: move %s: %w", src, storage.ErrNotExist)
	}
	b.objs[dst] = data
	delete(b.objs, src)
	return nil
}

func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objs[key]
	return ok, nil
}

func (b *Bucket) URI(key string) string {
	return "mem://" + b.name + "/" + key
}
