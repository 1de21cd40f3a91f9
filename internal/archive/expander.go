package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadable means the container could not be opened or parsed.
	// Expansion is all-or-nothing: no entries are admitted from an
	// unreadable container.
	ErrUnreadable = errors.New("archive unreadable")

	// ErrNoImages means the container was valid but held no entries with
	// a recognized image extension.
	ErrNoImages = errors.New("no images found in archive")
)

// Entry is one media file reconstructed from a container, carrying the
// original byte payload and a content type inferred from its extension.
type Entry struct {
	Name        string
	ContentType string
	Data        []byte
}

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// IsArchive reports whether the filename has a recognized container extension.
func IsArchive(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

// Expand turns a container file into its recognized image entries. A file
// that is not a container passes through unchanged as a single entry with
// the declared content type. Entries inside a container that do not match
// a supported image extension are dropped.
func Expand(filename, contentType string, data []byte) ([]Entry, error) {
	if !IsArchive(filename) {
		return []Entry{{Name: filename, ContentType: contentType, Data: data}}, nil
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, filename, err)
	}

	var entries []Entry
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		inferredType, ok := imageContentTypes[ext]
		if !ok {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %s: %v", ErrUnreadable, filename, f.Name, err)
		}
		payload, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %s: %v", ErrUnreadable, filename, f.Name, err)
		}

		entries = append(entries, Entry{
			Name:        filepath.Base(f.Name),
			ContentType: inferredType,
			Data:        payload,
		})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoImages, filename)
	}

	return entries, nil
}
