package documents

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/files/providers/localfs"
)

type fakeDocument struct {
	texts  []string
	closed bool
}

func (d *fakeDocument) NumPage() int { return len(d.texts) }

func (d *fakeDocument) ImageDPI(page int, _ float64) (*image.RGBA, error) {
	if page < 0 || page >= len(d.texts) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (d *fakeDocument) Text(page int) (string, error) {
	if page < 0 || page >= len(d.texts) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return d.texts[page], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	mu    sync.Mutex
	texts []string
	opens int
	last  *fakeDocument
}

func (o *fakeOpener) Open(string) (Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.last = &fakeDocument{texts: o.texts}
	return o.last, nil
}

type fakeRecognizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRecognizer) Recognize(_ context.Context, img []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.calls++
	return fmt.Sprintf("recognized %d (%d bytes)", r.calls, len(img)), nil
}

func newFileService(t *testing.T) *files.Service {
	t.Helper()
	uploads, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	outputs, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return files.NewService(nil, uploads, outputs, 0)
}

func saveUpload(t *testing.T, svc *files.Service, name, content string) string {
	t.Helper()
	stored, err := svc.Save(context.Background(), name, strings.NewReader(content))
	require.NoError(t, err)
	return stored
}
