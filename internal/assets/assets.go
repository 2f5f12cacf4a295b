// Package assets resolves request paths to static files below a fixed root.
//
// A Source maps the untrusted path segments of a request to an Asset. Two
// sources are provided: Dir, backed by a local directory, and Bucket, backed
// by a gocloud.dev/blob bucket. Limit and Cache wrap any Source to bound
// concurrent reads and keep small assets in memory.
//
// Every source validates segments with the same rules before touching
// storage: "." and ".." segments, and segments carrying a separator or NUL
// byte after decoding, are rejected with ErrTraversal. Dotfiles are hidden
// unless allowed. A directory resolves to its default document; directory
// contents are never listed.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no servable asset exists for a request.
	ErrNotFound = errors.New("asset not found")

	// ErrTraversal is returned when a request would resolve outside the root.
	ErrTraversal = errors.New("path escapes asset root")
)

// DefaultIndexFile is the default document used when Options.IndexFile is empty.
const DefaultIndexFile = "index.html"

// Source resolves request path segments to assets.
type Source interface {
	// Resolve maps segments to an asset without reading its content.
	// It returns an error wrapping ErrNotFound or ErrTraversal on failure.
	Resolve(ctx context.Context, segments []string) (*Asset, error)

	// Close releases resources held by the source.
	Close() error
}

// Options control how segments are resolved.
type Options struct {
	// IndexFile is the default document for directory requests.
	IndexFile string

	// AllowDotfiles permits segments that start with ".".
	AllowDotfiles bool
}

func (o Options) indexFile() string {
	if o.IndexFile == "" {
		return DefaultIndexFile
	}
	return o.IndexFile
}

// OpenFunc produces the content of an asset.
type OpenFunc func(ctx context.Context) (io.ReadSeekCloser, error)

// Asset is a resolved, servable file.
type Asset struct {
	// Name is the slash-separated path of the asset relative to the root.
	Name string

	// Size is the content length in bytes.
	Size int64

	// ModTime is the last modification time. It may be zero.
	ModTime time.Time

	// ContentType is derived from the extension of Name.
	ContentType string

	open OpenFunc
}

// NewAsset returns an asset whose content is produced by open.
func NewAsset(name string, size int64, modTime time.Time, open OpenFunc) *Asset {
	return &Asset{
		Name:        name,
		Size:        size,
		ModTime:     modTime,
		ContentType: ContentType(name),
		open:        open,
	}
}

// Open returns a reader over the asset content.
// The caller must close the reader when done.
func (a *Asset) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	if a.open == nil {
		return nil, fmt.Errorf("opening %s: %w", a.Name, ErrNotFound)
	}
	return a.open(ctx)
}

// ETag returns a weak entity tag derived from size and modification time.
func (a *Asset) ETag() string {
	return fmt.Sprintf(`W/"%x-%x"`, a.ModTime.UnixNano(), a.Size)
}

// withOpen returns a shallow copy of a with a different content producer.
func (a *Asset) withOpen(open OpenFunc) *Asset {
	c := *a
	c.open = open
	return &c
}

// SplitPath splits an escaped URL path into decoded segments.
// A segment that fails to decode yields ErrNotFound.
func SplitPath(escaped string) ([]string, error) {
	escaped = strings.TrimPrefix(escaped, "/")
	if escaped == "" {
		return nil, nil
	}

	raw := strings.Split(escaped, "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		dec, err := url.PathUnescape(s)
		if err != nil {
			return nil, fmt.Errorf("decoding segment %q: %w", s, ErrNotFound)
		}
		segments = append(segments, dec)
	}
	return segments, nil
}

// CleanName validates decoded segments and joins them into a
// slash-separated name relative to the root. An empty result means the
// root itself was requested.
func CleanName(segments []string, allowDotfiles bool) (string, error) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch {
		case seg == "":
			continue
		case seg == "." || seg == "..":
			return "", ErrTraversal
		case strings.ContainsAny(seg, "/\\\x00"):
			return "", ErrTraversal
		case !allowDotfiles && strings.HasPrefix(seg, "."):
			return "", ErrNotFound
		}
		parts = append(parts, seg)
	}

	if len(parts) == 0 {
		return "", nil
	}

	name := path.Join(parts...)
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", ErrTraversal
	}
	return name, nil
}
