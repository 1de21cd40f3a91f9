package storage

import "io"

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage spools uploaded media bytes between ingestion and dispatch.
type Storage interface {
	SaveFile(r io.Reader, info FileInfo) (string, error)
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
}
