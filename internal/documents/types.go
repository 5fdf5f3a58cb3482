// Package documents renders page thumbnails and extracts text from uploads in
// background workers.
package documents

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"time"
)

const (
	EngineOCR   = "ocr"
	EngineParse = "parse"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

const (
	PageFilePattern = "page_%d.txt"
	FullTextFile    = "full_text.txt"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tiff": {},
	".webp": {},
}

// IsImage reports whether name carries one of the image extensions OCR accepts.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsPDF reports whether name is a PDF by extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Result is the text of a document, one entry per page.
type Result struct {
	Pages []string
}

// FullText joins the pages with blank lines.
func (r Result) FullText() string {
	return strings.Join(r.Pages, "\n\n")
}

// Extractor turns the file at path into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

// Document is an opened PDF. Pages are 0-based.
type Document interface {
	NumPage() int
	ImageDPI(page int, dpi float64) (*image.RGBA, error)
	Text(page int) (string, error)
	Close() error
}

// Opener opens the PDF at path.
type Opener func(path string) (Document, error)

// Recognizer runs OCR over an encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// Status is the processing state of one upload.
type Status struct {
	Filename  string    `json:"filename"`
	Engine    string    `json:"engine"`
	Status    string    `json:"status"`
	Pages     int       `json:"pages"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	job uint64
}

// Finished reports whether the job reached a terminal state.
func (s Status) Finished() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}

// Event is published on every status transition.
type Event struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Engine   string `json:"engine"`
	Pages    int    `json:"pages"`
	Error    string `json:"error,omitempty"`
}

func eventOf(s Status) Event {
	return Event{
		Filename: s.Filename,
		Status:   s.Status,
		Engine:   s.Engine,
		Pages:    s.Pages,
		Error:    s.Error,
	}
}
