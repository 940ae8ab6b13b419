package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"http-bridge-go/internal/model"
)

// Destination overrides the scheme, host and port of an outbound request.
// Port 0 means the scheme's default port, so no port appears in the URL.
type Destination struct {
	Scheme string
	Host   string
	Port   int
}

// ParseDestination reads a destination from a URL such as
// "http://b.example:8080". Any path or query in raw is ignored.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, &DestinationError{Input: raw, Err: err}
	}

	d := Destination{Scheme: u.Scheme, Host: u.Hostname()}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Destination{}, &DestinationError{Input: raw, Err: ErrInvalidPort}
		}
		d.Port = port
	}

	if err := d.Validate(); err != nil {
		return Destination{}, err
	}
	return d, nil
}

// Validate checks that the destination can be written into a URL.
func (d Destination) Validate() error {
	fail := func(err error) error {
		return &DestinationError{Input: d.String(), Err: err}
	}

	switch strings.ToLower(d.Scheme) {
	case "":
		return fail(ErrEmptyScheme)
	case "http", "https":
	default:
		return fail(ErrInvalidScheme)
	}

	host := strings.TrimSuffix(strings.TrimPrefix(d.Host, "["), "]")
	if host == "" {
		return fail(ErrEmptyHost)
	}
	if strings.ContainsAny(host, "/?#@ \t\r\n[]") {
		return fail(ErrInvalidHost)
	}
	// A colon is only legal in an IPv6 literal; anything else carries a port.
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return fail(ErrInvalidHost)
	}

	if d.Port < 0 || d.Port > 65535 {
		return fail(ErrInvalidPort)
	}
	return nil
}

func (d Destination) String() string {
	if d.Port == 0 {
		return d.Scheme + "://" + d.hostHeader()
	}
	return d.Scheme + "://" + d.hostPort()
}

func (d Destination) bareHost() string {
	return strings.TrimSuffix(strings.TrimPrefix(d.Host, "["), "]")
}

// hostHeader is the host as it appears in a Host header, without port.
func (d Destination) hostHeader() string {
	h := d.bareHost()
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

func (d Destination) hostPort() string {
	if d.Port == 0 {
		return d.hostHeader()
	}
	return net.JoinHostPort(d.bareHost(), strconv.Itoa(d.Port))
}

// RequestTranslator converts inbound requests into outbound client requests.
type RequestTranslator struct {
	logger *slog.Logger
}

// NewRequestTranslator creates a RequestTranslator. A nil logger discards output.
func NewRequestTranslator(logger *slog.Logger) *RequestTranslator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RequestTranslator{logger: logger.With("component", "request_translator")}
}

// Translate builds an outbound request carrying the same method, URL,
// headers and body as in. The returned request shares no mutable state with in.
func (t *RequestTranslator) Translate(ctx context.Context, in *model.InboundRequest) (*http.Request, error) {
	if in == nil {
		return nil, &ConversionError{Field: "request", Err: ErrEmptyRequest}
	}
	if !ValidMethod(in.Method) {
		return nil, &ConversionError{Field: "method", Value: in.Method, Err: ErrInvalidMethod}
	}
	if in.URL == nil || !in.URL.IsAbs() || in.URL.Host == "" {
		raw := ""
		if in.URL != nil {
			raw = in.URL.String()
		}
		return nil, &ConversionError{Field: "url", Value: raw, Err: ErrInvalidURL}
	}

	header, err := CloneHeader(in.Header)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}

	target := cloneURL(in.URL)
	req, err := http.NewRequestWithContext(ctx, in.Method, target.String(), body)
	if err != nil {
		return nil, &ConversionError{Field: "url", Value: target.String(), Err: err}
	}
	// Keep the exact components rather than the reparsed string.
	req.URL = target
	req.Header = header
	// The client writes the Host line from req.Host, never from the header map.
	if host := headerValue(header, "Host"); host != "" {
		req.Host = host
	}

	t.logger.Debug("translated request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"headers", len(header),
		"body_bytes", len(in.Body),
	)
	return req, nil
}

// RewriteDestination points req at dst, replacing only the scheme, host and
// port of its URL. The Host header is overwritten with the new host.
func (t *RequestTranslator) RewriteDestination(req *http.Request, dst Destination) error {
	if err := dst.Validate(); err != nil {
		return err
	}
	if req == nil || req.URL == nil {
		return &DestinationError{Input: dst.String(), Err: ErrInvalidURL}
	}

	req.URL.Scheme = strings.ToLower(dst.Scheme)
	req.URL.Host = dst.hostPort()
	req.Host = dst.hostHeader()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	setHeader(req.Header, "Host", dst.hostHeader())

	t.logger.Debug("rewrote destination", "url", req.URL.Redacted())
	return nil
}

func cloneURL(u *url.URL) *url.URL {
	u2 := *u
	if u.User != nil {
		user := *u.User
		u2.User = &user
	}
	return &u2
}
