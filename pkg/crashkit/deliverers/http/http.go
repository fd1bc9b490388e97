// Package http provides a Deliverer that POSTs JSON payloads to a collector.
package http

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 64 << 10

// Option configures the HTTP deliverer.
type Option func(*Deliverer)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *nethttp.Client) Option {
	return func(d *Deliverer) { d.client = c }
}

// WithTimeout bounds every request (default: 30s).
func WithTimeout(timeout time.Duration) Option {
	return func(d *Deliverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithCompression gzips request bodies.
func WithCompression(enabled bool) Option {
	return func(d *Deliverer) { d.compress = enabled }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Deliverer) { d.logger = l }
}

// Deliverer sends payloads over HTTP.
type Deliverer struct {
	client   *nethttp.Client
	timeout  time.Duration
	compress bool
	logger   zerolog.Logger
}

// New creates an HTTP deliverer.
func New(opts ...Option) *Deliverer {
	d := &Deliverer{
		client:  &nethttp.Client{},
		timeout: 30 * time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "http_deliverer").Logger()
	return d
}

// DeliverEvent implements crashkit.Deliverer.
func (d *Deliverer) DeliverEvent(ctx context.Context, payload *crashkit.EventPayload, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn().Err(err).Msg("could not encode event payload")
		return crashkit.Failure
	}
	return d.post(ctx, body, params)
}

// DeliverSession implements crashkit.Deliverer.
func (d *Deliverer) DeliverSession(ctx context.Context, payload *crashkit.SessionPayload, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn().Err(err).Msg("could not encode session payload")
		return crashkit.Failure
	}
	return d.post(ctx, body, params)
}

func (d *Deliverer) post(ctx context.Context, body []byte, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	integrity := fmt.Sprintf("sha1 %x", sha1.Sum(body))

	encoding := ""
	if d.compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			d.logger.Warn().Err(err).Msg("could not compress payload, sending uncompressed")
		} else {
			body = compressed
			encoding = "gzip"
		}
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn().Err(err).Str("endpoint", params.Endpoint).Msg("invalid delivery endpoint")
		return crashkit.Failure
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	req.Header.Set(crashkit.HeaderIntegrity, integrity)
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug().Err(err).Msg("delivery request failed")
		return crashkit.Undelivered
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	status := StatusFor(resp.StatusCode)
	d.logger.Debug().Int("code", resp.StatusCode).Str("status", status.String()).Msg("delivery request finished")
	return status
}

// StatusFor maps an HTTP status code to a delivery status. 2xx is
// Delivered; 4xx other than 408 and 429 is Failure; the rest is retryable.
func StatusFor(code int) crashkit.DeliveryStatus {
	switch {
	case code >= 200 && code < 300:
		return crashkit.Delivered
	case code == nethttp.StatusRequestTimeout || code == nethttp.StatusTooManyRequests:
		return crashkit.Undelivered
	case code >= 400 && code < 500:
		return crashkit.Failure
	default:
		return crashkit.Undelivered
	}
}

func gzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
