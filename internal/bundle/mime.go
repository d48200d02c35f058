package bundle

import (
	"mime"
	"path"
	"strings"
)

// Media types for the extensions game projects actually ship. The platform
// mime database disagrees between hosts on several of these, so the
// web-facing set is pinned and the database only covers exotic extensions.
var webTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".js":   "text/javascript",
	".mjs":  "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".wasm": "application/wasm",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".xml":  "application/xml",
}

func mimeForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "application/octet-stream"
	}
	if mt, ok := webTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if idx := strings.Index(mt, ";"); idx >= 0 {
			mt = mt[:idx]
		}
		return strings.TrimSpace(mt)
	}
	return "application/octet-stream"
}
