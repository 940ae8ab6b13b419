package bridge

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	encodingGzip  = "gzip"
	mediaTypeGzip = "application/gzip"
)

// detectEncoding returns the body encoding the bridge knows how to decode,
// or "" when the body is forwarded as-is.
func detectEncoding(h http.Header) string {
	if strings.EqualFold(strings.TrimSpace(headerValue(h, "Content-Encoding")), encodingGzip) {
		return encodingGzip
	}
	mediaType, _, _ := strings.Cut(headerValue(h, "Content-Type"), ";")
	if strings.EqualFold(strings.TrimSpace(mediaType), mediaTypeGzip) {
		return encodingGzip
	}
	return ""
}

// readAll reads r to completion. A positive limit caps the number of bytes.
func readAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// decodeBody decompresses raw according to encoding.
func decodeBody(encoding string, raw []byte, limit int64) ([]byte, error) {
	switch encoding {
	case encodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return readAll(zr, limit)
	default:
		return raw, nil
	}
}
