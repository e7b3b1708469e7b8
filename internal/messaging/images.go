package messaging

import (
	"net/http"
	"path/filepath"
	"strings"
)

var allowedImageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "bmp": true,
	"avif": true, "svg": true, "tiff": true, "tif": true, "ico": true, "heic": true, "heif": true,
}

var sniffedImageExtensions = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpg",
	"image/gif":                "gif",
	"image/webp":               "webp",
	"image/bmp":                "bmp",
	"image/x-icon":             "ico",
	"image/avif":               "avif",
	"image/svg+xml":            "svg",
	"image/tiff":               "tiff",
	"image/heic":               "heic",
	"image/heif":               "heif",
	"image/vnd.microsoft.icon": "ico",
}

// ImageExtension picks the stored file extension for an upload. The
// filename's extension wins; browser blobs without a usable name fall back
// to the sniffed content type.
func ImageExtension(filename string, data []byte) (string, bool) {
	name := strings.TrimSpace(filename)
	if name != "" && !strings.EqualFold(name, "blob") {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext != "" {
			return ext, allowedImageExtensions[ext]
		}
	}

	contentType := http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := sniffedImageExtensions[contentType]
	return ext, ok
}
