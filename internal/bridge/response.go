package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"http-bridge-go/internal/metrics"
	"http-bridge-go/internal/model"
)

// drainLimit bounds how much of an unwanted body is read so the connection
// can go back to its pool.
const drainLimit = 256 << 10

const msgBodyUnreadable = "upstream response body could not be read"

// Policy controls how upstream response bodies are materialized.
type Policy struct {
	// DecodeContentEncoding gunzips bodies marked as gzip before forwarding
	// and fixes up Content-Encoding and Content-Length to match.
	DecodeContentEncoding bool
	// ForwardErrorBody forwards bodies and headers of non-2xx responses
	// instead of replying with the bare status.
	ForwardErrorBody bool
	// MaxBodyBytes caps the buffered body. Zero means no limit.
	MaxBodyBytes int64
}

// DefaultPolicy decodes gzip and drops non-2xx bodies.
func DefaultPolicy() Policy {
	return Policy{DecodeContentEncoding: true}
}

// ResponseTranslator converts transport outcomes into inbound responses.
type ResponseTranslator struct {
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResponseTranslator creates a ResponseTranslator. The logger and metrics
// are optional.
func NewResponseTranslator(policy Policy, logger *slog.Logger, m *metrics.Metrics) *ResponseTranslator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResponseTranslator{
		policy:  policy,
		logger:  logger.With("component", "response_translator"),
		metrics: m,
	}
}

// Translate produces exactly one inbound response for outcome. It never
// fails: transport and body errors become 500 responses. The upstream body,
// if any, is closed before Translate returns.
func (t *ResponseTranslator) Translate(ctx context.Context, outcome model.Outcome) *model.InboundResponse {
	if outcome.Failed() {
		if outcome.Response != nil && outcome.Response.Body != nil {
			_ = outcome.Response.Body.Close()
		}
		return t.transportFailure(ctx, outcome.Err)
	}

	resp := outcome.Response
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer func() { _ = resp.Body.Close() }()

	if !ValidStatus(resp.StatusCode) {
		drain(resp.Body)
		t.logger.ErrorContext(ctx, "invalid upstream response",
			"err", &BodyDecodeError{Err: ErrInvalidStatus},
			"status", resp.StatusCode,
		)
		return textResponse(http.StatusInternalServerError, msgBodyUnreadable)
	}

	if !IsSuccess(resp.StatusCode) && !t.policy.ForwardErrorBody {
		drain(resp.Body)
		t.logger.DebugContext(ctx, "upstream returned non-success status", "status", resp.StatusCode)
		return &model.InboundResponse{
			StatusCode: resp.StatusCode,
			Header:     make(http.Header),
		}
	}

	body, encoding, err := t.materialize(resp)
	if err != nil {
		t.logger.ErrorContext(ctx, "upstream response body failed",
			"err", err,
			"status", resp.StatusCode,
		)
		return textResponse(http.StatusInternalServerError, msgBodyUnreadable)
	}

	// Headers go last so they can describe the final body.
	header := make(http.Header, len(resp.Header))
	if dropped := CopyHeader(header, resp.Header); len(dropped) > 0 {
		t.logger.WarnContext(ctx, "dropped invalid upstream headers", "headers", dropped)
	}
	if encoding != "" {
		if strings.EqualFold(strings.TrimSpace(headerValue(header, "Content-Encoding")), encoding) {
			deleteHeader(header, "Content-Encoding")
		}
		setHeader(header, "Content-Length", strconv.Itoa(len(body)))
	}

	t.logger.DebugContext(ctx, "forwarded upstream response",
		"status", resp.StatusCode,
		"headers", header,
		"body_bytes", len(body),
	)

	return &model.InboundResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}
}

// materialize buffers the whole body and decodes it when the policy allows.
// The returned encoding is the one that was removed, or "" if the bytes are raw.
func (t *ResponseTranslator) materialize(resp *model.OutboundResponse) ([]byte, string, error) {
	raw, err := readAll(resp.Body, t.policy.MaxBodyBytes)
	if err != nil {
		return nil, "", &BodyDecodeError{Err: err}
	}

	// An empty body (HEAD, 204) has nothing to decode, and its encoding
	// headers describe the entity it stands for.
	if !t.policy.DecodeContentEncoding || len(raw) == 0 {
		return raw, "", nil
	}
	encoding := detectEncoding(resp.Header)
	if encoding == "" {
		return raw, "", nil
	}

	decoded, err := decodeBody(encoding, raw, t.policy.MaxBodyBytes)
	if err != nil {
		t.recordDecode(encoding, "error")
		return nil, "", &BodyDecodeError{Encoding: encoding, Err: err}
	}
	t.recordDecode(encoding, "ok")
	return decoded, encoding, nil
}

func (t *ResponseTranslator) transportFailure(ctx context.Context, err error) *model.InboundResponse {
	if err == nil {
		err = ErrNoResponse
	}
	var tf *TransportFailure
	if !errors.As(err, &tf) {
		tf = &TransportFailure{Err: err}
	}

	t.logger.ErrorContext(ctx, "upstream request failed",
		"err", err,
		"reason", tf.Reason(),
	)
	return textResponse(http.StatusInternalServerError, tf.Diagnostic())
}

func (t *ResponseTranslator) recordDecode(encoding, result string) {
	if t.metrics != nil {
		t.metrics.BodyDecodes.WithLabelValues(encoding, result).Inc()
	}
}

func textResponse(status int, msg string) *model.InboundResponse {
	return &model.InboundResponse{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       []byte(msg),
	}
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
}
