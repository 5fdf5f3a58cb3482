package files

import "errors"

var (
	// ErrNotFound indicates the requested file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName indicates a file name that is empty or carries path components.
	ErrInvalidName = errors.New("invalid file name")
	// ErrTooLarge indicates the payload exceeds the configured upload size.
	ErrTooLarge = errors.New("file too large")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
)
