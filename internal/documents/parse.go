package documents

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// ParseExtractor reads the text layer of a document without OCR. Images are
// handed to the OCR extractor.
type ParseExtractor struct {
	open Opener
	ocr  Extractor
}

func NewParseExtractor(open Opener, ocr Extractor) *ParseExtractor {
	if open == nil {
		open = OpenPDF
	}
	return &ParseExtractor{open: open, ocr: ocr}
}

func (e *ParseExtractor) Extract(ctx context.Context, path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return e.extractPDF(ctx, path)
	case ext == ".html" || ext == ".htm":
		return extractHTML(path)
	case ext == ".txt" || ext == ".md":
		raw, err := os.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("read text: %w", err)
		}
		return Result{Pages: []string{string(raw)}}, nil
	case IsImage(path) && e.ocr != nil:
		return e.ocr.Extract(ctx, path)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// extractPDF prefers the embedded text layer and asks MuPDF for pages the
// pdf reader returns empty.
func (e *ParseExtractor) extractPDF(ctx context.Context, path string) (Result, error) {
	pages, layerErr := readTextLayer(path)

	var doc Document
	fallback := func(i int) (string, error) {
		if doc == nil {
			d, err := e.open(path)
			if err != nil {
				return "", fmt.Errorf("open pdf: %w", err)
			}
			doc = d
		}
		return doc.Text(i)
	}
	defer func() {
		if doc != nil {
			_ = doc.Close()
		}
	}()

	if layerErr != nil {
		d, err := e.open(path)
		if err != nil {
			return Result{}, fmt.Errorf("read pdf: %w", layerErr)
		}
		doc = d
		pages = make([]string, doc.NumPage())
	}

	for i := range pages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if strings.TrimSpace(pages[i]) != "" {
			continue
		}
		text, err := fallback(i)
		if err != nil {
			return Result{}, fmt.Errorf("page %d text: %w", i+1, err)
		}
		pages[i] = strings.TrimSpace(text)
	}
	return Result{Pages: pages}, nil
}

func readTextLayer(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

func extractHTML(path string) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read html: %w", err)
	}
	content := string(raw)
	if article, err := readability.FromReader(bytes.NewReader(raw), &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}); err == nil && strings.TrimSpace(article.Content) != "" {
		content = article.Content
	}
	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return Result{}, fmt.Errorf("convert html: %w", err)
	}
	return Result{Pages: []string{strings.TrimSpace(markdown)}}, nil
}
