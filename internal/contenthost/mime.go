package contenthost

import (
	"mime"
	"path/filepath"
	"strings"
)

// knownTypes take precedence over the platform MIME table so web content
// is served identically everywhere.
var knownTypes = map[string]string{
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".wasm": "application/wasm",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".json": "application/json",
	".svg":  "image/svg+xml",
}

// MimeType returns the content type for a file name.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
