package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/git-pkgs/assetd/internal/metrics"
)

// Bucket implements Source using gocloud.dev/blob.
// Supports local filesystem (file://), in-memory (mem://) and S3 (s3://) URLs.
//
// fileblob follows symlinks, so file:// buckets also hold an os.Root on the
// same directory. Every key is checked against it and content is read
// through it, which keeps lookups inside the directory.
type Bucket struct {
	bucket *blob.Bucket
	root   *os.Root
	url    string
	opts   Options
}

// OpenBucket opens a blob bucket from a URL.
//
// Supported URL schemes:
//   - file:///path/to/dir - Local filesystem storage
//   - mem:// - In-memory bucket, mostly useful for tests
//   - s3://bucket-name - Amazon S3 (uses AWS_* environment variables)
//   - s3://bucket-name?region=us-east-1&endpoint=http://localhost:9000 - S3-compatible (MinIO, etc.)
//
// For file:// URLs the directory must already exist.
func OpenBucket(ctx context.Context, urlStr string, opts Options) (*Bucket, error) {
	if strings.HasPrefix(urlStr, "file://") {
		parsed, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("parsing URL: %w", err)
		}

		p := parsed.Path
		if p == "" {
			p = parsed.Opaque
		}

		// fileblob requires an absolute path
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("checking bucket directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("bucket path %s is not a directory", absPath)
		}

		root, err := os.OpenRoot(absPath)
		if err != nil {
			return nil, fmt.Errorf("opening bucket directory: %w", err)
		}

		urlStr = "file://" + filepath.ToSlash(absPath)
		bucket, err := blob.OpenBucket(ctx, urlStr)
		if err != nil {
			_ = root.Close()
			return nil, fmt.Errorf("opening bucket: %w", err)
		}
		return &Bucket{bucket: bucket, root: root, url: urlStr, opts: opts}, nil
	}

	bucket, err := blob.OpenBucket(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("opening bucket: %w", err)
	}

	return &Bucket{bucket: bucket, url: urlStr, opts: opts}, nil
}

// NewBucket wraps an already opened bucket.
func NewBucket(b *blob.Bucket, opts Options) *Bucket {
	return &Bucket{bucket: b, opts: opts}
}

// Resolve maps segments to an object key.
// A key that does not exist is retried as a directory holding the
// default document.
func (b *Bucket) Resolve(ctx context.Context, segments []string) (*Asset, error) {
	name, err := CleanName(segments, b.opts.AllowDotfiles)
	if err != nil {
		return nil, err
	}

	key := name
	if key == "" {
		key = b.opts.indexFile()
	}

	attrs, err := b.attributes(ctx, key)
	if err != nil && isNotExist(err) && name != "" {
		key = name + "/" + b.opts.indexFile()
		attrs, err = b.attributes(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return NewAsset(key, attrs.Size, attrs.ModTime, func(ctx context.Context) (io.ReadSeekCloser, error) {
		return b.open(ctx, key)
	}), nil
}

// attributes looks up key, refusing keys that leave a file:// bucket's
// directory through a symlink.
func (b *Bucket) attributes(ctx context.Context, key string) (*blob.Attributes, error) {
	if b.root != nil {
		if _, err := b.root.Stat(filepath.FromSlash(key)); err != nil {
			return nil, err
		}
	}
	return b.bucket.Attributes(ctx, key)
}

func (b *Bucket) open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	start := time.Now()
	defer func() { metrics.RecordAssetOpen("bucket", time.Since(start)) }()

	if b.root != nil {
		f, err := b.root.Open(filepath.FromSlash(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			_ = f.Close()
			return nil, fmt.Errorf("%s is not a regular file: %w", key, ErrNotFound)
		}
		return f, nil
	}

	r, err := b.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return r, nil
}

// Close closes the underlying bucket.
func (b *Bucket) Close() error {
	err := b.bucket.Close()
	if b.root != nil {
		if rerr := b.root.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// URL returns the URL the bucket was opened with.
func (b *Bucket) URL() string {
	return b.url
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || gcerrors.Code(err) == gcerrors.NotFound
}
