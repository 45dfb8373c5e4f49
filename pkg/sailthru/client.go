// Package sailthru provides a client for the Sailthru marketing automation API.
//
// Every call is sent to {apiURL}/{action} with four form fields:
//   - api_key: the account's API key
//   - format: the response format requested from the service ("json")
//   - json: the call parameters encoded as a JSON document
//   - sig: hex MD5 of the API secret followed by the other field values in sorted order
//
// GET and DELETE send the fields in the query string, POST sends them as a
// form body, or as multipart/form-data when files are attached. Responses are
// parsed into a dynamic Value by a pluggable ResponseHandler.
//
// A Client holds no per-call state and is safe for concurrent use.
package sailthru

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/sailthru/pkg/config"
	httpclient "github.com/natserract/sailthru/pkg/http"
	"go.uber.org/zap"
)

// Client is the main client for interacting with the Sailthru API
type Client struct {
	apiKey     string
	apiSecret  string
	httpClient *httpclient.Client
	handler    ResponseHandler
	recorder   Recorder
	logger     *zap.Logger
}

type Option func(*Client)

// WithResponseHandler replaces the default JSON handler.
func WithResponseHandler(h ResponseHandler) Option {
	return func(c *Client) {
		if h != nil {
			c.handler = h
		}
	}
}

// WithRecorder reports every completed call to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// New creates a new Sailthru client that discards its logs
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	return NewWithLogger(cfg, zap.NewNop(), opts...)
}

// NewWithLogger creates a new Sailthru client with a custom logger
func NewWithLogger(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = config.DefaultAPIURL
	}

	hc, err := httpclient.NewClient(httpclient.Options{
		BaseURL:      apiURL,
		Timeout:      cfg.Timeout,
		StrictScheme: cfg.StrictScheme,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: hc,
		handler:    JSONHandler{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Debug("Sailthru client created",
		zap.String("api_url", hc.BaseURL()),
		zap.String("scheme", hc.Scheme().Name),
		zap.String("format", c.handler.Format()))

	return c, nil
}

// APIURL is the base URL requests are sent to after scheme resolution.
func (c *Client) APIURL() string { return c.httpClient.BaseURL() }

// Scheme reports whether requests use TLS and on which default port.
func (c *Client) Scheme() httpclient.Scheme { return c.httpClient.Scheme() }

func (c *Client) record(ctx context.Context, rec CallRecord) {
	if c.recorder == nil {
		return
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC()
	if err := c.recorder.RecordCall(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("Failed to record API call",
			zap.String("call_id", rec.ID.String()),
			zap.String("action", rec.Action.String()),
			zap.Error(err))
	}
}
