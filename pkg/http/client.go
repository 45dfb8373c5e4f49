package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultUserAgent    = "Sailthru Go Client/1.0"
	DefaultCharset      = "UTF-8"
	DefaultHTTPPort     = 80
	DefaultHTTPSPort    = 443
	defaultTimeout      = 30 * time.Second
	defaultIdlePerHost  = 10
	defaultContinueWait = time.Second
)

// ErrUnsupportedScheme is returned in strict mode when the base URL is not http or https.
var ErrUnsupportedScheme = errors.New("unsupported base URL scheme")

// Scheme describes how connections to the base URL are made.
type Scheme struct {
	Name string
	Port int
	TLS  bool
}

var (
	plainScheme  = Scheme{Name: "http", Port: DefaultHTTPPort}
	secureScheme = Scheme{Name: "https", Port: DefaultHTTPSPort, TLS: true}
)

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// StrictScheme fails construction for base URLs that are neither http nor https.
	// When false such URLs are rewritten to plain http.
	StrictScheme          bool
	MaxIdleConnsPerHost   int
	ExpectContinueTimeout time.Duration
}

// FilePart is a named file attached to a multipart POST.
type FilePart struct {
	FieldName string
	FileName  string
	Content   io.Reader
}

type RequestOptions struct {
	Method  string
	Path    string
	Form    map[string]string
	Files   []FilePart
	Headers map[string]string
	Context context.Context
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client sends form-encoded requests to a single base URL over a pooled,
// HTTP/1.1-only transport. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	scheme     Scheme
	userAgent  string
	logger     *zap.Logger
}

// NewClient creates a new HTTP client bound to opts.BaseURL.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL, scheme, err := ResolveScheme(opts.BaseURL, opts.StrictScheme)
	if err != nil {
		return nil, err
	}
	if baseURL != opts.BaseURL {
		logger.Warn("Base URL scheme not recognised, falling back to plain HTTP",
			zap.String("configured", opts.BaseURL),
			zap.String("effective", baseURL))
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newTransport(scheme, opts),
		},
		baseURL:   baseURL,
		scheme:    scheme,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

func newTransport(scheme Scheme, opts Options) *http.Transport {
	idle := opts.MaxIdleConnsPerHost
	if idle <= 0 {
		idle = defaultIdlePerHost
	}
	continueWait := opts.ExpectContinueTimeout
	if continueWait <= 0 {
		continueWait = defaultContinueWait
	}

	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   idle,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: continueWait,
		// A non-nil empty map keeps connections on HTTP/1.1.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	if scheme.TLS {
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		t.TLSHandshakeTimeout = 10 * time.Second
	}
	return t
}

// ResolveScheme picks the connection scheme for baseURL and returns the URL
// requests should actually be sent to.
func ResolveScheme(baseURL string, strict bool) (string, Scheme, error) {
	u, err := url.Parse(baseURL)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "https":
			return baseURL, secureScheme, nil
		case "http":
			return baseURL, plainScheme, nil
		}
	}

	if strict {
		return "", Scheme{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, baseURL)
	}

	if err != nil || u.Host == "" {
		// No authority component, e.g. "api.example.com" or "localhost:8080".
		return "http://" + strings.TrimPrefix(baseURL, "//"), plainScheme, nil
	}
	u.Scheme = plainScheme.Name
	return u.String(), plainScheme, nil
}

func (c *Client) BaseURL() string { return c.baseURL }
func (c *Client) Scheme() Scheme  { return c.scheme }

// URLFor returns {baseURL}/{path}.
func (c *Client) URLFor(path string) string {
	return JoinURL(c.baseURL, path)
}

func (c *Client) Do(opts RequestOptions) (*Response, error) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		c.logger.Error("Failed to build request", zap.Error(err), zap.String("method", opts.Method), zap.String("path", opts.Path))
		return nil, err
	}

	c.logger.Debug("Making HTTP request",
		zap.String("method", opts.Method),
		zap.String("path", opts.Path),
		zap.Int("files", len(opts.Files)))

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("HTTP request failed",
			zap.Error(err),
			zap.String("method", opts.Method),
			zap.String("path", opts.Path))
		return nil, fmt.Errorf("%s %s: %w", opts.Method, opts.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logger.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("HTTP request completed",
		zap.Int("status_code", httpResp.StatusCode),
		zap.String("method", opts.Method),
		zap.String("path", opts.Path))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	endpoint := c.URLFor(opts.Path)
	form := url.Values{}
	for k, v := range opts.Form {
		form.Set(k, v)
	}

	var (
		bodyReader  io.Reader
		contentType string
	)

	switch opts.Method {
	case http.MethodGet, http.MethodDelete:
		if len(opts.Files) > 0 {
			return nil, fmt.Errorf("file parts require POST, got %s", opts.Method)
		}
		if len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
	case http.MethodPost:
		if len(opts.Files) > 0 {
			body, ct, err := encodeMultipart(opts.Form, opts.Files)
			if err != nil {
				return nil, err
			}
			bodyReader, contentType = body, ct
		} else {
			bodyReader = strings.NewReader(form.Encode())
			contentType = "application/x-www-form-urlencoded; charset=" + DefaultCharset
		}
	default:
		return nil, fmt.Errorf("unsupported method %q", opts.Method)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Charset", DefaultCharset)
	if bodyReader != nil {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Expect", "100-continue")
	}

	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

func encodeMultipart(fields map[string]string, files []FilePart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	for _, k := range sortedKeys(fields) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	for _, f := range files {
		if f.FieldName == "" {
			return nil, "", fmt.Errorf("file part is missing a field name")
		}
		if f.Content == nil {
			return nil, "", fmt.Errorf("file part %s has no content", f.FieldName)
		}
		part, err := mw.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part %s: %w", f.FieldName, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy file part %s: %w", f.FieldName, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalise multipart body: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func (c *Client) Get(ctx context.Context, path string, form map[string]string) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodGet,
		Path:    path,
		Form:    form,
		Context: ctx,
	})
}

func (c *Client) Post(ctx context.Context, path string, form map[string]string) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodPost,
		Path:    path,
		Form:    form,
		Context: ctx,
	})
}

// PostMultipart sends form alongside the given file parts as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, path string, form map[string]string, files []FilePart) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodPost,
		Path:    path,
		Form:    form,
		Files:   files,
		Context: ctx,
	})
}

func (c *Client) Delete(ctx context.Context, path string, form map[string]string) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodDelete,
		Path:    path,
		Form:    form,
		Context: ctx,
	})
}
