package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/git-pkgs/assetd/internal/config"
)

func setupResolveRoot(t *testing.T) *config.Config {
	t.Helper()

	parent := t.TempDir()
	root := filepath.Join(parent, "static")
	for name, content := range map[string]string{
		"index.html":   "<h1>home</h1>",
		"css/site.css": "body{}",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	applySourceFlags(cfg, root, "")
	return cfg
}

func TestResolveText(t *testing.T) {
	cfg := setupResolveRoot(t)

	var buf bytes.Buffer
	if err := resolve(context.Background(), cfg, "/css/site.css", false, &buf); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"css/site.css", "text/css", "6 B", `W/"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResolveJSON(t *testing.T) {
	cfg := setupResolveRoot(t)

	var buf bytes.Buffer
	if err := resolve(context.Background(), cfg, "docs/../index.html", true, &buf); err == nil {
		t.Error("expected traversal to be reported as not found")
	}

	buf.Reset()
	if err := resolve(context.Background(), cfg, "/", true, &buf); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var out resolveOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if out.Name != "index.html" {
		t.Errorf("Name = %q, want index.html", out.Name)
	}
	if out.Size != int64(len("<h1>home</h1>")) {
		t.Errorf("Size = %d", out.Size)
	}
	if out.ContentType != "text/html; charset=utf-8" {
		t.Errorf("ContentType = %q", out.ContentType)
	}
}

func TestResolveNotFound(t *testing.T) {
	cfg := setupResolveRoot(t)

	for _, p := range []string{"/missing.js", "/../secret.txt", "/%2e%2e/secret.txt"} {
		err := resolve(context.Background(), cfg, p, false, &bytes.Buffer{})
		if err == nil || !strings.HasPrefix(err.Error(), "not found") {
			t.Errorf("resolve(%q) error = %v, want not found", p, err)
		}
	}
}

func TestApplySourceFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Assets.URL = "mem://"

	applySourceFlags(cfg, "/srv/www", "")
	if cfg.Assets.Root != "/srv/www" || cfg.Assets.URL != "" {
		t.Errorf("root flag: got root=%q url=%q", cfg.Assets.Root, cfg.Assets.URL)
	}

	applySourceFlags(cfg, "", "s3://bucket")
	if cfg.Assets.URL != "s3://bucket" {
		t.Errorf("assets-url flag: got url=%q", cfg.Assets.URL)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}

	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
