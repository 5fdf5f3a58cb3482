package documents

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
)

// OCRExtractor rasterizes PDF pages and runs OCR over each of them. Image
// files are recognized directly.
type OCRExtractor struct {
	open       Opener
	recognizer Recognizer
	dpi        float64
}

func NewOCRExtractor(open Opener, recognizer Recognizer, dpi float64) *OCRExtractor {
	if open == nil {
		open = OpenPDF
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &OCRExtractor{open: open, recognizer: recognizer, dpi: dpi}
}

func (e *OCRExtractor) Extract(ctx context.Context, path string) (Result, error) {
	switch {
	case IsPDF(path):
		return e.extractPDF(ctx, path)
	case IsImage(path):
		raw, err := os.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("read image: %w", err)
		}
		text, err := e.recognizer.Recognize(ctx, raw)
		if err != nil {
			return Result{}, err
		}
		return Result{Pages: []string{text}}, nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

func (e *OCRExtractor) extractPDF(ctx context.Context, path string) (Result, error) {
	doc, err := e.open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		img, err := doc.ImageDPI(i, e.dpi)
		if err != nil {
			return Result{}, fmt.Errorf("render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return Result{}, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		text, err := e.recognizer.Recognize(ctx, buf.Bytes())
		if err != nil {
			return Result{}, fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return Result{Pages: pages}, nil
}
