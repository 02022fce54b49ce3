// Package storage contains the object-store contract the lake reads from and
// writes to, a scheme registry for concrete backends, and the partitioned
// table writer and reader built on top of it.
//
// Keys are slash separated and relative to the root the Bucket was opened
// at. Backends register themselves from init; import storage/all to enable
// every built-in scheme.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrNotExist is returned (wrapped) by Open for a missing key.
var ErrNotExist = errors.New("object does not exist")

// Bucket is a flat key space of immutable objects.
type Bucket interface {
	// List returns every key under dir (recursively), sorted. An empty dir
	// lists the whole bucket. A missing dir yields no keys and no error.
	List(ctx context.Context, dir string) ([]string, error)
	// Open returns the content of key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put creates or replaces key.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Move renames src to dst, replacing dst.
	Move(ctx context.Context, src, dst string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// URI renders key as an absolute location for logs and reports.
	URI(key string) string
}

// Credentials for backends that need them. Empty fields fall back to the
// backend's own credential chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Options configures bucket construction.
type Options struct {
	Credentials Credentials
	Region      string
	// Endpoint overrides the service endpoint (S3-compatible stores).
	Endpoint string
	// PathStyle forces path-style addressing.
	PathStyle bool
}

// Factory opens a bucket rooted at u.
type Factory func(ctx context.Context, u *url.URL, opt Options) (Bucket, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for a URI scheme.
func Register(scheme string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[strings.ToLower(scheme)] = f
}

// Schemes lists the registered URI schemes.
func Schemes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open resolves location to a Bucket. A location without "://" is a local
// filesystem path and uses the "file" scheme.
func Open(ctx context.Context, location string, opt Options) (Bucket, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("storage: empty location")
	}
	var u *url.URL
	if !strings.Contains(location, "://") {
		u = &url.URL{Scheme: "file", Path: location}
	} else {
		var err error
		u, err = url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("storage: parse %q: %w", location, err)
		}
	}
	scheme := strings.ToLower(u.Scheme)
	regMu.RLock()
	f, ok := factories[scheme]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for scheme %q", scheme)
	}
	return f(ctx, u, opt)
}

// Join joins key segments with "/", dropping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// ReadAll opens key and reads it fully.
func ReadAll(ctx context.Context, b Bucket, key string) ([]byte, error) {
	rc, err := b.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
