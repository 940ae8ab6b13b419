package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"http-bridge-go/internal/bridge"
	"http-bridge-go/internal/model"
	"http-bridge-go/internal/service"
)

// statusClientClosedRequest is the non-standard status logged when the
// caller goes away before a response exists.
const statusClientClosedRequest = 499

// ProxyHandler hands inbound requests to the bridge and writes back its response.
type ProxyHandler struct {
	service *service.BridgeService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.BridgeService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle buffers the inbound request, forwards it through the bridge and
// writes the translated response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request body could not be read",
		})
	}

	in := &model.InboundRequest{
		Method: req.Method,
		URL:    inboundURL(c),
		Header: inboundHeader(req),
		Body:   body,
	}

	resp, err := h.service.Forward(req.Context(), in)
	if err != nil {
		return h.mapError(c, err)
	}

	return writeResponse(c, resp)
}

// inboundURL returns the absolute URL the caller addressed. Requests sent
// in proxy form already carry one; origin-form requests are completed from
// the scheme and Host.
func inboundURL(c echo.Context) *url.URL {
	req := c.Request()
	u := *req.URL
	if !u.IsAbs() {
		u.Scheme = c.Scheme()
		u.Host = req.Host
	}
	return &u
}

// inboundHeader returns the request headers including Host, which net/http
// keeps outside the header map.
func inboundHeader(req *http.Request) http.Header {
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if req.Host != "" && header.Get("Host") == "" {
		header.Set("Host", req.Host)
	}
	return header
}

// writeResponse writes resp to the caller. Upstream headers replace any the
// bridge's middleware already set under the same name.
func writeResponse(c echo.Context, resp *model.InboundResponse) error {
	dst := c.Response().Header()
	for key := range resp.Header {
		for existing := range dst {
			if strings.EqualFold(existing, key) {
				delete(dst, existing)
			}
		}
	}
	for key, vals := range resp.Header {
		dst[key] = append(dst[key], vals...)
	}

	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err := c.Response().Write(resp.Body)
	return err
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrCanceled) {
		h.logger.Debug("caller canceled request", "path", c.Request().URL.Path)
		return c.NoContent(statusClientClosedRequest)
	}

	h.logger.Error("bridge error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	var convErr *bridge.ConversionError
	if errors.As(err, &convErr) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request could not be converted: " + convErr.Field,
		})
	}

	var dstErr *bridge.DestinationError
	if errors.As(err, &dstErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream destination is invalid",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}
