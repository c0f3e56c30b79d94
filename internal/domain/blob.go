package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader lists and opens archived objects. Open returns ErrNotFound for
// a missing key.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Archiver moves old data from the database to cold storage.
type Archiver interface {
	ArchivePositions(ctx context.Context, before time.Time) (int64, error)
	ArchiveTradeLogs(ctx context.Context, before time.Time) (int64, error)
}
