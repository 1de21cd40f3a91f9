package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func makeZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestExpandPassthrough(t *testing.T) {
	data := []byte("raw image bytes")

	entries, err := Expand("photo.jpg", "image/jpeg", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Name != "photo.jpg" {
		t.Errorf("expected original name preserved, got %s", entries[0].Name)
	}
	if entries[0].ContentType != "image/jpeg" {
		t.Errorf("expected declared content type preserved, got %s", entries[0].ContentType)
	}
	if !bytes.Equal(entries[0].Data, data) {
		t.Error("payload was modified on passthrough")
	}
}

func TestExpandZip(t *testing.T) {
	data := makeZip(t, map[string][]byte{
		"a.jpg":         []byte("jpeg data"),
		"nested/b.png":  []byte("png data"),
		"readme.txt":    []byte("ignore me"),
		"subdir/":       nil,
		"c.JPEG":        []byte("uppercase ext"),
		"noextension":   []byte("ignore too"),
		"d.webp":        []byte("webp data"),
	})

	entries, err := Expand("photos.zip", "application/zip", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	byName := make(map[string]Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}

	if e, ok := byName["b.png"]; !ok {
		t.Error("nested entry b.png missing")
	} else if e.ContentType != "image/png" {
		t.Errorf("expected inferred image/png, got %s", e.ContentType)
	}

	if _, ok := byName["readme.txt"]; ok {
		t.Error("non-image entry was admitted")
	}

	if e, ok := byName["c.JPEG"]; !ok {
		t.Error("uppercase extension entry missing")
	} else if e.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg for .JPEG, got %s", e.ContentType)
	}
}

func TestExpandCorruptZip(t *testing.T) {
	_, err := Expand("broken.zip", "application/zip", []byte("this is not a zip file"))
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestExpandEmptyZip(t *testing.T) {
	data := makeZip(t, map[string][]byte{
		"notes.txt": []byte("text only"),
		"doc.pdf":   []byte("pdf"),
	})

	entries, err := Expand("docs.zip", "application/zip", data)
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
	if entries != nil {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestIsArchive(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"photos.zip", true},
		{"photos.ZIP", true},
		{"photo.jpg", false},
		{"archive.tar.gz", false},
		{"zip", false},
	}

	for _, tt := range tests {
		if got := IsArchive(tt.filename); got != tt.want {
			t.Errorf("IsArchive(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
