package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/memohai/docdesk/internal/files"
)

// WriteResult stores page_{i}.txt for every page and full_text.txt under dir.
func WriteResult(ctx context.Context, outputs files.Provider, dir string, result Result) error {
	for i, page := range result.Pages {
		key := path.Join(dir, fmt.Sprintf(PageFilePattern, i+1))
		if err := outputs.Put(ctx, key, strings.NewReader(page)); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	key := path.Join(dir, FullTextFile)
	if err := outputs.Put(ctx, key, strings.NewReader(result.FullText())); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// ReadFullText returns the stored full_text.txt under dir.
func ReadFullText(ctx context.Context, outputs files.Provider, dir string) (string, error) {
	rc, err := outputs.Open(ctx, path.Join(dir, FullTextFile))
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return "", ErrNotProcessed
		}
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read full text: %w", err)
	}
	return string(raw), nil
}
