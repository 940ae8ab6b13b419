package bridge

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ValidMethod reports whether m is a non-empty HTTP token.
func ValidMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// IsSuccess reports whether code is in the 2xx class.
func IsSuccess(code int) bool {
	return code >= 200 && code <= 299
}

// ValidStatus reports whether code is a three-digit HTTP status.
func ValidStatus(code int) bool {
	return code >= 100 && code <= 999
}

// CloneHeader copies src into a new header, keeping names as given and values
// in order. The first invalid name or value aborts the copy with a
// ConversionError.
func CloneHeader(src http.Header) (http.Header, error) {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, &ConversionError{Field: "header", Value: name, Err: ErrInvalidHeader}
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, &ConversionError{Field: "header", Value: name, Err: ErrInvalidHeader}
			}
		}
		dst[name] = append(make([]string, 0, len(values)), values...)
	}
	return dst, nil
}

// CopyHeader appends every valid header of src onto dst, keeping names as
// given and duplicates in order. A name with any invalid value is dropped
// as a whole. It returns each dropped name once.
func CopyHeader(dst, src http.Header) (dropped []string) {
	for name, values := range src {
		if !validField(name, values) {
			dropped = append(dropped, name)
			continue
		}
		dst[name] = append(dst[name], values...)
	}
	return dropped
}

func validField(name string, values []string) bool {
	if !httpguts.ValidHeaderFieldName(name) {
		return false
	}
	for _, v := range values {
		if !httpguts.ValidHeaderFieldValue(v) {
			return false
		}
	}
	return true
}

// headerValue returns the first value of name, matching case-insensitively
// so that non-canonical keys are found too.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// setHeader replaces every case variant of name with a single value.
func setHeader(h http.Header, name, value string) {
	deleteHeader(h, name)
	h.Set(name, value)
}

func deleteHeader(h http.Header, name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}
