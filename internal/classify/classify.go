// Package classify decides whether a submitted file is an image, a video,
// or unsupported. Classification is pure: it looks at the declared content
// type first and the filename extension second, never at file contents.
package classify

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lyalik/geo-locator/internal/media"
)

// ErrUnsupportedMediaType means neither the declared type nor the filename
// extension identified the file as image or video.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".gif":  true,
	".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// Classify returns the media kind for the given declared content type and
// filename. The declared type wins when it is a definite image/* or video/*;
// otherwise the extension allow-lists decide.
func Classify(contentType, filename string) (media.Kind, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return media.KindImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return media.KindVideo, nil
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[ext]:
		return media.KindImage, nil
	case videoExtensions[ext]:
		return media.KindVideo, nil
	}

	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedMediaType, filename, contentType)
}
