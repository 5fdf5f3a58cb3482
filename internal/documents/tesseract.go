package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with libtesseract. A client is created per call,
// gosseract clients are not safe for concurrent use.
type Tesseract struct {
	Languages []string
	PSM       int
}

func (t Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if t.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(t.PSM)); err != nil {
			return "", fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}
