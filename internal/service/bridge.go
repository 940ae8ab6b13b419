// Package service runs one inbound request through the bridge and back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"http-bridge-go/internal/bridge"
	"http-bridge-go/internal/config"
	"http-bridge-go/internal/metrics"
	"http-bridge-go/internal/model"
)

// ErrCanceled is returned when the caller's context is canceled before a
// response was produced. No InboundResponse exists in that case.
var ErrCanceled = fmt.Errorf("request canceled by caller: %w", context.Canceled)

// Transport dispatches one outbound request.
type Transport interface {
	Do(req *http.Request) model.Outcome
}

// BridgeService forwards inbound requests to the upstream and translates
// the outcome back.
type BridgeService struct {
	transport   Transport
	requests    *bridge.RequestTranslator
	responses   *bridge.ResponseTranslator
	destination *bridge.Destination // nil: forward to the inbound request's own host
	logger      *slog.Logger
}

// NewBridgeService creates a BridgeService. When upstream.base_url is set,
// every request is rewritten to its scheme, host and port.
func NewBridgeService(t Transport, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*BridgeService, error) {
	s := &BridgeService{
		transport: t,
		requests:  bridge.NewRequestTranslator(logger),
		responses: bridge.NewResponseTranslator(PolicyFromConfig(cfg.Bridge), logger, m),
		logger:    logger.With("component", "bridge_service"),
	}

	if cfg.Upstream.BaseURL != "" {
		dst, err := bridge.ParseDestination(cfg.Upstream.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream base_url: %w", err)
		}
		s.destination = &dst
	}

	return s, nil
}

// PolicyFromConfig maps the [bridge] config section to a response policy.
func PolicyFromConfig(c config.BridgeConfig) bridge.Policy {
	return bridge.Policy{
		DecodeContentEncoding: c.Decode(),
		ForwardErrorBody:      c.ForwardErrorBody,
		MaxBodyBytes:          c.MaxBodyBytes,
	}
}

// Forward sends in upstream and returns the translated response.
//
// Conversion and destination errors are returned without dispatching
// anything. ErrCanceled is returned if ctx is canceled before a response is
// produced. Otherwise exactly one response is returned, which may be a 500
// describing a transport or body failure.
func (s *BridgeService) Forward(ctx context.Context, in *model.InboundRequest) (*model.InboundResponse, error) {
	req, err := s.requests.Translate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("translate request: %w", err)
	}

	if s.destination != nil {
		if err := s.requests.RewriteDestination(req, *s.destination); err != nil {
			return nil, fmt.Errorf("rewrite destination: %w", err)
		}
	}

	s.logger.Debug("forwarding request",
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	outcome := s.transport.Do(req)
	if canceled(ctx) {
		if outcome.Response != nil && outcome.Response.Body != nil {
			_ = outcome.Response.Body.Close()
		}
		return nil, ErrCanceled
	}

	resp := s.responses.Translate(ctx, outcome)
	if canceled(ctx) {
		return nil, ErrCanceled
	}
	return resp, nil
}

func canceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
