package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
)

// Service manages uploads and the artifacts derived from them (thumbnails and
// extracted text) across two providers.
type Service struct {
	uploads  Provider
	outputs  Provider
	maxBytes int64
	logger   *slog.Logger
}

// NewService creates a file service. maxBytes <= 0 disables the upload size check.
func NewService(log *slog.Logger, uploads, outputs Provider, maxBytes int64) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		uploads:  uploads,
		outputs:  outputs,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "files")),
	}
}

// BaseName strips the extension: "report.pdf" -> "report".
func BaseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ThumbnailName is the output key of a page thumbnail, pages are 1-based.
func ThumbnailName(name string, page int) string {
	return fmt.Sprintf("%s_page_%d.png", BaseName(name), page)
}

// OutputDir is the output key holding the extracted text of name.
func OutputDir(name string) string {
	return BaseName(name)
}

// SanitizeName reduces a client supplied name to a plain file name.
func SanitizeName(raw string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	return name, nil
}

// checkName accepts only names that are already plain file names.
func checkName(name string) error {
	clean, err := SanitizeName(name)
	if err != nil {
		return err
	}
	if clean != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Service) Uploads() Provider { return s.uploads }
func (s *Service) Outputs() Provider { return s.outputs }

// Save stores reader under the sanitized name, replacing any previous upload.
func (s *Service) Save(ctx context.Context, rawName string, reader io.Reader) (string, error) {
	name, err := SanitizeName(rawName)
	if err != nil {
		return "", err
	}
	if err := s.uploads.Put(ctx, name, newLimitReader(reader, s.maxBytes)); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	s.logger.Info("file uploaded", slog.String("filename", name))
	return name, nil
}

// Exists reports whether name is a stored upload.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := s.uploads.Stat(ctx, strings.TrimSpace(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// List returns the stored upload names in lexical order.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.uploads.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return names, nil
}

// LocalPath resolves an upload to a host path.
func (s *Service) LocalPath(ctx context.Context, name string) (string, error) {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.uploads.Path(strings.TrimSpace(name))
}

// Thumbnails returns the thumbnail keys already rendered for name, stopping at
// the first missing page.
func (s *Service) Thumbnails(ctx context.Context, name string) ([]string, error) {
	keys := []string{}
	for page := 1; ; page++ {
		key := ThumbnailName(name, page)
		if _, err := s.outputs.Stat(ctx, key); err != nil {
			if errors.Is(err, ErrNotFound) {
				return keys, nil
			}
			return nil, err
		}
		keys = append(keys, key)
	}
}

// Remove deletes an upload together with its thumbnails and extracted text.
func (s *Service) Remove(ctx context.Context, name string) (RemoveResult, error) {
	if err := checkName(name); err != nil {
		return RemoveResult{}, err
	}
	name = strings.TrimSpace(name)
	if err := s.uploads.Delete(ctx, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return RemoveResult{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return RemoveResult{}, fmt.Errorf("remove %s: %w", name, err)
	}
	result := RemoveResult{Filename: name, Thumbnails: []string{}}
	for page := 1; ; page++ {
		key := ThumbnailName(name, page)
		err := s.outputs.Delete(ctx, key)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("remove thumbnail %s: %w", key, err)
		}
		result.Thumbnails = append(result.Thumbnails, key)
	}
	dir := OutputDir(name)
	if info, err := s.outputs.Stat(ctx, dir); err == nil && info.IsDir() {
		if err := s.outputs.DeleteAll(ctx, dir); err != nil {
			return result, fmt.Errorf("remove output dir %s: %w", dir, err)
		}
		result.OutputDir = true
	}
	s.logger.Info("file removed",
		slog.String("filename", name),
		slog.Int("thumbnails", len(result.Thumbnails)),
		slog.Bool("output_dir", result.OutputDir),
	)
	return result, nil
}
