package assets

import (
	"path"
	"strings"
)

// FallbackContentType is used for extensions missing from the table.
const FallbackContentType = "application/octet-stream"

// contentTypes is fixed so responses do not depend on the host's mime.types.
var contentTypes = map[string]string{
	// Documents
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".xml":  "application/xml; charset=utf-8",
	".pdf":  "application/pdf",

	// Scripts and data
	".js":          "text/javascript; charset=utf-8",
	".mjs":         "text/javascript; charset=utf-8",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".wasm":        "application/wasm",

	// Images
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".avif": "image/avif",

	// Fonts
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",

	// Media
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",

	// Archives
	".zip": "application/zip",
	".gz":  "application/gzip",
	".tar": "application/x-tar",
}

// ContentType returns the content type for a file name based on its
// extension. Extensions are matched case-insensitively; unknown ones
// fall back to application/octet-stream.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		if isLikelyText(name) {
			return "text/plain; charset=utf-8"
		}
		return FallbackContentType
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return FallbackContentType
}

// isLikelyText checks if an extensionless filename is a well-known text file.
func isLikelyText(name string) bool {
	switch strings.ToLower(path.Base(name)) {
	case "readme", "license", "authors", "contributors",
		"changelog", "changes", "news", "history", "robots":
		return true
	}
	return false
}
