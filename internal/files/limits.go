package files

import (
	"fmt"
	"io"
)

// ReadAllWithLimit buffers a request body, failing with ErrTooLarge past
// maxBytes. Webhook handlers use it before any signature check.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil || maxBytes <= 0 {
		return nil, fmt.Errorf("read with limit: reader and a positive limit are required")
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// limitReader streams at most max bytes and fails with ErrTooLarge past that.
type limitReader struct {
	r    io.Reader
	max  int64
	read int64
}

func newLimitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitReader{r: r, max: max}
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, fmt.Errorf("%w: max %d bytes", ErrTooLarge, l.max)
	}
	return n, err
}
