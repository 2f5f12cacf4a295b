// Command assetd serves static assets from a directory or bucket over HTTP.
//
// Usage:
//
//	assetd [command] [flags]
//
// Commands:
//
//	serve    Start the asset server (default if no command given)
//	resolve  Show which asset a URL path resolves to
//
// Serve Flags:
//
//	-config string
//	      Path to configuration file (YAML, JSON or TOML)
//	-listen string
//	      Address to listen on (default ":8080")
//	-root string
//	      Directory to serve assets from (default "./static")
//	-assets-url string
//	      Bucket URL to serve assets from instead of -root (file:// or s3://)
//	-index-mode string
//	      What "/" serves: file or demo (default "file")
//	-log-level string
//	      Log level: debug, info, warn, error (default "info")
//	-log-format string
//	      Log format: text, json (default "text")
//
// Resolve Flags:
//
//	-config string
//	      Path to configuration file
//	-root string
//	      Directory to resolve against
//	-assets-url string
//	      Bucket URL to resolve against
//	-json
//	      Output as JSON
//
// Global Flags:
//
//	-version
//	      Print version and exit
//
// Environment Variables:
//
//	ASSETD_LISTEN          - Listen address
//	ASSETD_ROOT            - Asset root directory
//	ASSETD_ASSETS_URL      - Asset bucket URL
//	ASSETD_INDEX           - Index file name
//	ASSETD_INDEX_MODE      - What "/" serves (file or demo)
//	ASSETD_CACHE_CONTROL   - Cache-Control header for assets
//	ASSETD_CACHE_MAX_SIZE  - In-memory cache size (e.g. 64MB)
//	ASSETD_METRICS         - Enable /metrics (true or false)
//	ASSETD_LOG_LEVEL       - Log level
//	ASSETD_LOG_FORMAT      - Log format
//
// Example:
//
//	# Serve ./static on :8080
//	assetd
//
//	# Serve a bucket with the demo clock at /
//	assetd serve -assets-url s3://my-assets -index-mode demo
//
//	# Check where a path goes
//	assetd resolve -root ./public /css/site.css
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/git-pkgs/assetd/internal/assets"
	"github.com/git-pkgs/assetd/internal/config"
	"github.com/git-pkgs/assetd/internal/server"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Commit is set at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			os.Args = append(os.Args[:1], os.Args[2:]...)
			runServe()
			return
		case "resolve":
			os.Args = append(os.Args[:1], os.Args[2:]...)
			runResolve()
			return
		case "-version", "--version":
			fmt.Printf("assetd %s (%s)\n", Version, Commit)
			os.Exit(0)
		case "-h", "-help", "--help":
			printUsage()
			os.Exit(0)
		}
	}

	// Default to serve
	runServe()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `assetd - Static asset server

Usage: assetd [command] [flags]

Commands:
  serve    Start the asset server (default)
  resolve  Show which asset a URL path resolves to

Run 'assetd <command> -help' for more information on a command.

Global Flags:
  -version   Print version and exit
  -help      Show this help message
`)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML, JSON or TOML)")
	listen := fs.String("listen", "", "Address to listen on")
	root := fs.String("root", "", "Directory to serve assets from")
	assetsURL := fs.String("assets-url", "", "Bucket URL to serve assets from instead of -root")
	indexMode := fs.String("index-mode", "", "What / serves: file or demo")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: text, json")
	version := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "assetd - Static asset server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: assetd serve [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_LISTEN          Listen address\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_ROOT            Asset root directory\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_ASSETS_URL      Asset bucket URL\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_INDEX           Index file name\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_INDEX_MODE      What / serves (file or demo)\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_CACHE_CONTROL   Cache-Control header for assets\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_CACHE_MAX_SIZE  In-memory cache size\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_METRICS         Enable /metrics\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_LOG_LEVEL       Log level\n")
		fmt.Fprintf(os.Stderr, "  ASSETD_LOG_FORMAT      Log format\n")
	}

	_ = fs.Parse(os.Args[1:])

	if *version {
		fmt.Printf("assetd %s (%s)\n", Version, Commit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	// Apply environment variables
	cfg.LoadFromEnv()

	// Apply command line flags (highest priority)
	if *listen != "" {
		cfg.Listen = *listen
	}
	applySourceFlags(cfg, *root, *assetsURL)
	if *indexMode != "" {
		cfg.Index.Mode = *indexMode
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			_ = srv.Shutdown(context.Background())
			os.Exit(1)
		}
	}
}

func runResolve() {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	root := fs.String("root", "", "Directory to resolve against")
	assetsURL := fs.String("assets-url", "", "Bucket URL to resolve against")
	asJSON := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "assetd - Show which asset a URL path resolves to\n\n")
		fmt.Fprintf(os.Stderr, "Usage: assetd resolve [flags] PATH\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.LoadFromEnv()
	applySourceFlags(cfg, *root, *assetsURL)

	// The resolve command never needs the in-memory cache.
	cfg.Assets.Cache.MaxSize = ""

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := resolve(context.Background(), cfg, fs.Arg(0), *asJSON, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type resolveOutput struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
	ModTime     string `json:"modified"`
	ETag        string `json:"etag"`
}

// resolve looks up urlPath the same way the server does and prints the result.
func resolve(ctx context.Context, cfg *config.Config, urlPath string, asJSON bool, w io.Writer) error {
	src, err := server.OpenSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening asset source: %w", err)
	}
	defer func() { _ = src.Close() }()

	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}

	segments, err := assets.SplitPath(urlPath)
	if err == nil {
		var a *assets.Asset
		a, err = src.Resolve(ctx, segments)
		if err == nil {
			return printAsset(w, urlPath, a, asJSON)
		}
	}

	if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrTraversal) {
		return fmt.Errorf("not found: %s", urlPath)
	}
	return err
}

func printAsset(w io.Writer, urlPath string, a *assets.Asset, asJSON bool) error {
	out := resolveOutput{
		Path:        urlPath,
		Name:        a.Name,
		Size:        a.Size,
		ContentType: a.ContentType,
		ModTime:     a.ModTime.UTC().Format(time.RFC3339),
		ETag:        a.ETag(),
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	_, err := fmt.Fprintf(w, "Path:         %s\nAsset:        %s\nSize:         %s\nContent-Type: %s\nModified:     %s\nETag:         %s\n",
		out.Path, out.Name, formatSize(out.Size), out.ContentType, out.ModTime, out.ETag)
	return err
}

// applySourceFlags lets -root and -assets-url override whatever source the
// config picked. Naming a directory clears any configured bucket.
func applySourceFlags(cfg *config.Config, root, assetsURL string) {
	if root != "" {
		cfg.Assets.Root = root
		cfg.Assets.URL = ""
	}
	if assetsURL != "" {
		cfg.Assets.URL = assetsURL
	}
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
