// Package files stores uploaded documents and the artifacts derived from them.
package files

import (
	"context"
	"io"
	"io/fs"
)

// Provider is a storage backend rooted at a single directory.
// Keys are slash separated and relative to the root.
type Provider interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (fs.FileInfo, error)
	Delete(ctx context.Context, key string) error
	// DeleteAll removes key and everything below it.
	DeleteAll(ctx context.Context, key string) error
	// List returns the regular file names directly under dir ("" is the root).
	List(ctx context.Context, dir string) ([]string, error)
	// Path resolves key to a local filesystem path for engines that need one.
	Path(key string) (string, error)
	Root() string
}

// RemoveResult lists the keys removed for one upload.
type RemoveResult struct {
	Filename   string   `json:"filename"`
	Thumbnails []string `json:"thumbnails"`
	OutputDir  bool     `json:"output_dir"`
}
