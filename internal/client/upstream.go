// Package client provides the outbound HTTP transport used by the bridge.
package client

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"http-bridge-go/internal/bridge"
	"http-bridge-go/internal/config"
	"http-bridge-go/internal/metrics"
	"http-bridge-go/internal/model"
)

// errServerError marks 5xx responses as breaker failures. The response itself
// is still returned to the caller.
var errServerError = errors.New("upstream server error")

// UpstreamClient sends outbound requests and reports each call as a model.Outcome.
type UpstreamClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		// Bodies are decoded by the bridge's own policy, never by the transport.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are part of the upstream response and go back to the caller.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}

	if cfg.Upstream.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Upstream.Breaker, c.logger)
	}
	return c
}

func newBreaker(cfg config.BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	maxFailures := uint32(cfg.MaxFailures) //nolint:gosec // validated non-negative by config
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.OpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Do dispatches req and returns its outcome. A response is returned for any
// status the upstream sends; Err is set only when no response was produced
// and is always a *bridge.TransportFailure. The caller owns the response body.
func (c *UpstreamClient) Do(req *http.Request) model.Outcome {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := c.roundTrip(req)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		failure := &bridge.TransportFailure{
			Method: req.Method,
			URL:    req.URL.Redacted(),
			Err:    err,
		}
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
			c.metrics.UpstreamFailures.WithLabelValues(failure.Reason()).Inc()
		}
		return model.Outcome{Err: failure}
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return model.Outcome{Response: &model.OutboundResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}}
}

func (c *UpstreamClient) roundTrip(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via Outcome
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via Outcome
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return nil, errServerError
		}
		return nil, nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}
