package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/git-pkgs/assetd/internal/assets"
	"github.com/git-pkgs/assetd/internal/metrics"
)

// handleAsset serves GET /* from the asset source.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	// Decode segment by segment so an encoded slash can't join two segments.
	segments, err := assets.SplitPath(r.URL.EscapedPath())
	if err != nil {
		s.notFound(w, r, err)
		return
	}
	s.serveAsset(w, r, segments)
}

// serveAsset resolves segments and writes the asset. Conditional and range
// requests are handled by http.ServeContent.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, segments []string) {
	ctx := r.Context()

	asset, err := s.source.Resolve(ctx, segments)
	if err != nil {
		s.notFound(w, r, err)
		return
	}

	content, err := asset.Open(ctx)
	if err != nil {
		s.notFound(w, r, err)
		return
	}
	defer func() { _ = content.Close() }()

	h := w.Header()
	h.Set("Content-Type", asset.ContentType)
	h.Set("ETag", asset.ETag())
	h.Set("X-Content-Type-Options", "nosniff")
	if cc := s.cfg.Assets.CacheControl; cc != "" {
		h.Set("Cache-Control", cc)
	}

	http.ServeContent(w, r, asset.Name, asset.ModTime, content)
}

// notFound answers with the standard 404. Traversal attempts get the same
// response as missing files.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request, err error) {
	reason := "not_found"
	switch {
	case errors.Is(err, assets.ErrTraversal):
		reason = "traversal"
		s.logger.Warn("rejected path",
			"request_id", GetRequestID(r.Context()),
			"path", r.URL.Path,
			"remote", r.RemoteAddr)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
	case !errors.Is(err, assets.ErrNotFound):
		reason = "error"
		s.logger.Error("failed to resolve asset",
			"request_id", GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	default:
		s.logger.Debug("asset not found",
			"request_id", GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}

	metrics.RecordResolveError(reason)
	http.NotFound(w, r)
}
