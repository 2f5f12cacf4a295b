package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func createTestDir(t *testing.T, opts Options) (*Dir, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "static")
	writeFile(t, root, "index.html", "<h1>home</h1>")
	writeFile(t, root, "css/site.css", "body { color: red; }")
	writeFile(t, root, "docs/index.html", "<h1>docs</h1>")
	writeFile(t, root, "empty/.keep", "")
	writeFile(t, root, ".env", "SECRET=1")

	d, err := OpenDir(root, opts)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return d, root
}

func readAsset(t *testing.T, a *Asset) string {
	t.Helper()

	rc, err := a.Open(context.Background())
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", a.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s: %v", a.Name, err)
	}
	return string(data)
}

func TestOpenDir(t *testing.T) {
	root := t.TempDir()

	d, err := OpenDir(root, Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	if d.Root() != root {
		t.Errorf("Root() = %q, want %q", d.Root(), root)
	}
}

func TestOpenDirMissing(t *testing.T) {
	_, err := OpenDir(filepath.Join(t.TempDir(), "nope"), Options{})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestOpenDirNotADirectory(t *testing.T) {
	file := writeFile(t, t.TempDir(), "file.txt", "x")

	if _, err := OpenDir(file, Options{}); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestDirResolve(t *testing.T) {
	d, _ := createTestDir(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		segments []string
		wantName string
		wantBody string
		wantType string
	}{
		{"root uses index", nil, "index.html", "<h1>home</h1>", "text/html; charset=utf-8"},
		{"trailing slash on root", []string{""}, "index.html", "<h1>home</h1>", "text/html; charset=utf-8"},
		{"nested file", []string{"css", "site.css"}, "css/site.css", "body { color: red; }", "text/css"},
		{"directory uses index", []string{"docs"}, "docs/index.html", "<h1>docs</h1>", "text/html; charset=utf-8"},
		{"directory with slash", []string{"docs", ""}, "docs/index.html", "<h1>docs</h1>", "text/html; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := d.Resolve(ctx, tt.segments)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.segments, err)
			}
			if a.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", a.Name, tt.wantName)
			}
			if a.ContentType != tt.wantType {
				t.Errorf("ContentType = %q, want %q", a.ContentType, tt.wantType)
			}
			if a.Size != int64(len(tt.wantBody)) {
				t.Errorf("Size = %d, want %d", a.Size, len(tt.wantBody))
			}
			if a.ModTime.IsZero() {
				t.Error("ModTime should be set")
			}
			if got := readAsset(t, a); got != tt.wantBody {
				t.Errorf("content = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestDirResolveByteIdentical(t *testing.T) {
	d, root := createTestDir(t, Options{})

	// Binary content including bytes that are not valid UTF-8.
	content := make([]byte, 70000)
	for i := range content {
		content[i] = byte(i * 31)
	}
	p := filepath.Join(root, "img", "blob.bin")
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatal(err)
	}

	a, err := d.Resolve(context.Background(), []string{"img", "blob.bin"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := readAsset(t, a); got != string(content) {
		t.Error("content differs from file on disk")
	}
}

func TestDirResolveNotFound(t *testing.T) {
	d, _ := createTestDir(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		segments []string
	}{
		{"missing file", []string{"does", "not", "exist.css"}},
		{"directory without index", []string{"empty"}},
		{"dotfile", []string{".env"}},
		{"dotfile in subdirectory", []string{"empty", ".keep"}},
		{"file as directory", []string{"index.html", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Resolve(ctx, tt.segments)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Resolve(%q) error = %v, want ErrNotFound", tt.segments, err)
			}
		})
	}
}

func TestDirResolveMissingIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.js", "x")

	d, err := OpenDir(root, Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	if _, err := d.Resolve(context.Background(), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(root) error = %v, want ErrNotFound", err)
	}
}

func TestDirResolveCustomIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "home.htm", "custom")

	d, err := OpenDir(root, Options{IndexFile: "home.htm"})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	a, err := d.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := readAsset(t, a); got != "custom" {
		t.Errorf("content = %q, want %q", got, "custom")
	}
}

func TestDirResolveDotfilesAllowed(t *testing.T) {
	d, _ := createTestDir(t, Options{AllowDotfiles: true})

	a, err := d.Resolve(context.Background(), []string{".env"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := readAsset(t, a); got != "SECRET=1" {
		t.Errorf("content = %q", got)
	}
}

func TestDirResolveTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "static")
	writeFile(t, root, "index.html", "ok")
	secret := writeFile(t, parent, "secret.txt", "top secret")

	d, err := OpenDir(root, Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	ctx := context.Background()

	traversals := [][]string{
		{"..", "secret.txt"},
		{"css", "..", "..", "secret.txt"},
		{"../secret.txt"},
		{`..\secret.txt`},
		{"."},
	}
	for _, segs := range traversals {
		if _, err := d.Resolve(ctx, segs); !errors.Is(err, ErrTraversal) {
			t.Errorf("Resolve(%q) error = %v, want ErrTraversal", segs, err)
		}
	}

	// An absolute path is taken relative to the root, never as-is.
	abs, err := SplitPath(filepath.ToSlash(secret))
	if err != nil {
		t.Fatalf("SplitPath failed: %v", err)
	}
	if _, err := d.Resolve(ctx, abs); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(%q) error = %v, want ErrNotFound", abs, err)
	}
}

func TestDirResolveSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "static")
	writeFile(t, root, "inside.txt", "inside")
	outside := writeFile(t, parent, "outside.txt", "outside")

	if err := os.Symlink(outside, filepath.Join(root, "escape.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink("inside.txt", filepath.Join(root, "alias.txt")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}
	if err := os.Symlink("..", filepath.Join(root, "up")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	d, err := OpenDir(root, Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer func() { _ = d.Close() }()

	ctx := context.Background()

	for _, segs := range [][]string{{"escape.txt"}, {"up", "outside.txt"}} {
		a, err := d.Resolve(ctx, segs)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", segs, err)
		}
		if a != nil {
			t.Errorf("Resolve(%q) returned an asset for a path outside the root", segs)
		}
	}

	// Links that stay inside the root are fine.
	a, err := d.Resolve(ctx, []string{"alias.txt"})
	if err != nil {
		t.Fatalf("Resolve(alias.txt) failed: %v", err)
	}
	if got := readAsset(t, a); got != "inside" {
		t.Errorf("content = %q, want %q", got, "inside")
	}
}

func TestDirOpenAfterRemoval(t *testing.T) {
	d, root := createTestDir(t, Options{})

	a, err := d.Resolve(context.Background(), []string{"css", "site.css"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "css", "site.css")); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Open(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}
