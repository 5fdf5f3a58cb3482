package documents

import (
	"github.com/gen2brain/go-fitz"
)

// OpenPDF opens a PDF with MuPDF.
func OpenPDF(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
