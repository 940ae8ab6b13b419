// Package model defines the message types exchanged across the bridge.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// InboundRequest is the request received from the original caller, with its
// body already fully buffered. The bridge only reads it.
type InboundRequest struct {
	Method string
	URL    *url.URL // absolute: scheme, host, port, path, query
	Header http.Header
	Body   []byte
}

// OutboundResponse is the upstream response as produced by the transport.
// Body can be consumed once.
type OutboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Outcome is the result of one transport call: either Response or Err is set.
type Outcome struct {
	Response *OutboundResponse
	Err      error
}

// Failed reports whether the call did not produce a response.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Response == nil
}

// InboundResponse is the reply handed back to the inbound server layer.
type InboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
