package documents

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/memohai/docdesk/internal/files"
)

// ThumbnailDPI is the resolution page previews are rendered at.
const ThumbnailDPI = 200

// Thumbnailer renders PDF pages to PNG previews in the output store.
type Thumbnailer struct {
	files  *files.Service
	open   Opener
	dpi    float64
	logger *slog.Logger
}

func NewThumbnailer(log *slog.Logger, svc *files.Service, open Opener) *Thumbnailer {
	if log == nil {
		log = slog.Default()
	}
	if open == nil {
		open = OpenPDF
	}
	return &Thumbnailer{
		files:  svc,
		open:   open,
		dpi:    ThumbnailDPI,
		logger: log.With(slog.String("service", "thumbnails")),
	}
}

// Existing returns thumbnail keys already rendered for name in page order.
func (t *Thumbnailer) Existing(ctx context.Context, name string) ([]string, error) {
	return t.files.Thumbnails(ctx, name)
}

// Generate renders every page of the uploaded PDF name and returns the keys.
func (t *Thumbnailer) Generate(ctx context.Context, name string) ([]string, error) {
	if !IsPDF(name) {
		return nil, fmt.Errorf("%w: thumbnails need a pdf", ErrUnsupported)
	}
	localPath, err := t.files.LocalPath(ctx, name)
	if err != nil {
		return nil, err
	}
	doc, err := t.open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	keys := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, t.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		key := files.ThumbnailName(name, i+1)
		if err := t.files.Outputs().Put(ctx, key, &buf); err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	t.logger.Info("thumbnails generated", slog.String("filename", name), slog.Int("pages", len(keys)))
	return keys, nil
}

// Ensure returns existing thumbnails, rendering them first when none exist.
func (t *Thumbnailer) Ensure(ctx context.Context, name string) ([]string, error) {
	keys, err := t.Existing(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		return keys, nil
	}
	return t.Generate(ctx, name)
}
