package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/git-pkgs/assetd/internal/metrics"
)

// Dir implements Source using a local directory.
//
// The directory is opened once with os.OpenRoot, so every lookup is
// confined to it by the operating system: a symlink pointing outside the
// root fails to resolve instead of being followed.
type Dir struct {
	root *os.Root
	path string
	opts Options
}

// OpenDir opens the directory at root for serving.
// The directory must already exist.
func OpenDir(root string, opts Options) (*Dir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("checking root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	r, err := os.OpenRoot(absRoot)
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}

	return &Dir{root: r, path: absRoot, opts: opts}, nil
}

// Resolve maps segments to a regular file below the root.
func (d *Dir) Resolve(ctx context.Context, segments []string) (*Asset, error) {
	name, err := CleanName(segments, d.opts.AllowDotfiles)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = d.opts.indexFile()
	}

	info, err := d.root.Stat(filepath.FromSlash(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if info.IsDir() {
		name = path.Join(name, d.opts.indexFile())
		info, err = d.root.Stat(filepath.FromSlash(name))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file: %w", name, ErrNotFound)
	}

	return NewAsset(name, info.Size(), info.ModTime(), func(ctx context.Context) (io.ReadSeekCloser, error) {
		return d.open(name)
	}), nil
}

func (d *Dir) open(name string) (io.ReadSeekCloser, error) {
	start := time.Now()
	defer func() { metrics.RecordAssetOpen("dir", time.Since(start)) }()

	f, err := d.root.Open(filepath.FromSlash(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// The file may have been swapped for something else since Resolve.
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is no longer a regular file: %w", name, ErrNotFound)
	}

	return f, nil
}

// Close releases the root directory handle.
func (d *Dir) Close() error {
	return d.root.Close()
}

// Root returns the absolute path of the root directory.
func (d *Dir) Root() string {
	return d.path
}
