// Package bridge translates between the inbound server's HTTP messages and the
// outbound client transport's HTTP messages.
//
// A call flows through the package in a fixed order: RequestTranslator builds
// the outbound request and optionally rewrites its destination, the transport
// dispatches it, and ResponseTranslator turns the transport outcome into
// exactly one inbound response.
package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/sony/gobreaker"
)

var (
	// ErrEmptyRequest is returned when there is no inbound request to translate.
	ErrEmptyRequest = errors.New("empty inbound request")

	// ErrInvalidMethod is returned when a method is not a valid HTTP token.
	ErrInvalidMethod = errors.New("invalid method token")

	// ErrInvalidURL is returned when a URL is not absolute or cannot be used.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidHeader is returned for header names or values that violate HTTP grammar.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrEmptyScheme is returned when a destination has no scheme.
	ErrEmptyScheme = errors.New("empty scheme")

	// ErrInvalidScheme is returned for destination schemes other than http and https.
	ErrInvalidScheme = errors.New("unsupported scheme")

	// ErrEmptyHost is returned when a destination has no host.
	ErrEmptyHost = errors.New("empty host")

	// ErrInvalidHost is returned when a destination host cannot be used as a URL host.
	ErrInvalidHost = errors.New("invalid host")

	// ErrInvalidPort is returned when a destination port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrBodyTooLarge is returned when a response body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidStatus is returned when the upstream status code is outside 100-999.
	ErrInvalidStatus = errors.New("invalid upstream status code")

	// ErrNoResponse marks an outcome that carries neither a response nor an error.
	ErrNoResponse = errors.New("transport returned no response")
)

// ConversionError reports a failure to convert an inbound request into an
// outbound one.
type ConversionError struct {
	Field string // method, url, header
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("convert %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("convert %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// DestinationError reports an unusable destination rewrite directive.
type DestinationError struct {
	Input string
	Err   error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %q: %v", e.Input, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// Transport failure reasons, used as metric labels.
const (
	ReasonTimeout     = "timeout"
	ReasonDNS         = "dns"
	ReasonRefused     = "refused"
	ReasonTLS         = "tls"
	ReasonCircuitOpen = "circuit_open"
	ReasonOther       = "other"
)

var diagnostics = map[string]string{
	ReasonTimeout:     "upstream request timed out",
	ReasonDNS:         "upstream host unreachable",
	ReasonRefused:     "upstream connection refused",
	ReasonTLS:         "upstream TLS handshake failed",
	ReasonCircuitOpen: "upstream circuit open",
	ReasonOther:       "upstream request failed",
}

// TransportFailure reports that an outbound call produced no response.
type TransportFailure struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportFailure) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// Reason classifies the failure cause into a bounded set of labels.
func (e *TransportFailure) Reason() string {
	err := e.Err
	if err == nil {
		return ReasonOther
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ReasonCircuitOpen
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}

	var certErr *tls.CertificateVerificationError
	var recErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recErr) {
		return ReasonTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonOther
}

// Diagnostic returns a short, caller-safe description of the failure.
func (e *TransportFailure) Diagnostic() string {
	return diagnostics[e.Reason()]
}

// BodyDecodeError reports a failure while reading or decoding an upstream body.
type BodyDecodeError struct {
	Encoding string // empty for identity
	Err      error
}

func (e *BodyDecodeError) Error() string {
	if e.Encoding == "" {
		return fmt.Sprintf("read response body: %v", e.Err)
	}
	return fmt.Sprintf("decode %s response body: %v", e.Encoding, e.Err)
}

func (e *BodyDecodeError) Unwrap() error { return e.Err }
