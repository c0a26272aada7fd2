// Package artifacts persists generated media and turns stored locations back
// into local bytes for the generator.
package artifacts

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var (
	ErrInvalidKey        = errors.New("artifacts: invalid key")
	ErrForeignLocation   = errors.New("artifacts: location not managed by this store")
	ErrReferenceTooLarge = errors.New("artifacts: reference exceeds size limit")
)

// Store saves artifact bytes under a key and returns where they landed.
// Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (models.Location, error)
	Delete(ctx context.Context, loc models.Location) error
	Open(ctx context.Context, loc models.Location) (io.ReadCloser, error)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// ContentTypeForKey guesses a MIME type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	default:
		return ""
	}
}

// ExtensionFor maps a MIME type to the file extension used in artifact keys.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	default:
		return "bin"
	}
}
