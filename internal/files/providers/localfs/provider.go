// Package localfs implements files.Provider on a directory of the host filesystem.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memohai/docdesk/internal/files"
)

// Provider stores files below a single root directory.
type Provider struct {
	root string
}

// New creates the root directory if needed and returns a provider for it.
func New(root string) (*Provider, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Provider{root: abs}, nil
}

func (p *Provider) Root() string { return p.root }

// Put writes reader to key through a temp file so readers never observe a partial file.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (p *Provider) Stat(_ context.Context, key string) (fs.FileInfo, error) {
	dest, err := p.Path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	return info, nil
}

// Delete removes a single file. A missing file is files.ErrNotFound.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return files.ErrNotFound
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (p *Provider) DeleteAll(_ context.Context, key string) error {
	dest, err := p.Path(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("delete dir: %w", err)
	}
	return nil
}

func (p *Provider) List(_ context.Context, dir string) ([]string, error) {
	target := p.root
	if strings.TrimSpace(dir) != "" {
		resolved, err := p.Path(dir)
		if err != nil {
			return nil, err
		}
		target = resolved
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path converts a storage key into a host path below the root.
func (p *Provider) Path(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("storage key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute key %s", files.ErrPathTraversal, key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("%w: %s", files.ErrPathTraversal, key)
	}
	joined := filepath.Join(p.root, clean)
	if !strings.HasPrefix(joined, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes root: %s", files.ErrPathTraversal, key)
	}
	return joined, nil
}
