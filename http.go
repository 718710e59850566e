package netutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-cleanhttp"
)

const formContentType = "application/x-www-form-urlencoded"

// maxRedirects mirrors the net/http default policy.
const maxRedirects = 10

// Option configures a single HTTP request and the client built for it.
type Option func(*requestOptions)

type requestOptions struct {
	basicAuth   bool
	username    string
	password    string
	contentType string
	compression bool
	timeout     time.Duration
	statusCheck bool
	headers     http.Header
	logger      *slog.Logger
}

// WithBasicAuth attaches basic-auth credentials to the request. They are
// re-sent on every redirect hop regardless of host.
func WithBasicAuth(username, password string) Option {
	return func(o *requestOptions) {
		o.basicAuth = true
		o.username = username
		o.password = password
	}
}

// WithContentType sets the Content-Type header. Without it the request
// carries whatever net/http sends by default.
func WithContentType(contentType string) Option {
	return func(o *requestOptions) {
		o.contentType = contentType
	}
}

// WithCompression enables transparent gzip negotiation. It is off by default
// so response bodies are returned exactly as sent.
func WithCompression(enabled bool) Option {
	return func(o *requestOptions) {
		o.compression = enabled
	}
}

// WithTimeout bounds the whole request including reading the body.
func WithTimeout(timeout time.Duration) Option {
	return func(o *requestOptions) {
		o.timeout = timeout
	}
}

// WithStatusCheck turns non-2xx responses into a *StatusError.
func WithStatusCheck() Option {
	return func(o *requestOptions) {
		o.statusCheck = true
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		o.headers.Add(key, value)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *requestOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) *requestOptions {
	o := &requestOptions{headers: make(http.Header)}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// NewHTTPClient builds the client used for a single request to rawURL. Every
// call returns a client on its own transport with keep-alives off, so nothing
// is shared between calls. For https URLs the client accepts self-signed
// certificates and skips hostname verification.
func NewHTTPClient(rawURL string, opts ...Option) *http.Client {
	return buildOptions(opts).client(rawURL)
}

func (o *requestOptions) client(rawURL string) *http.Client {
	transport := cleanhttp.DefaultTransport()
	transport.DisableCompression = !o.compression
	if isHTTPS(rawURL) {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, // self-signed and mismatched hostnames are accepted
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   o.timeout,
	}
	if o.basicAuth {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			req.SetBasicAuth(o.username, o.password)
			return nil
		}
	}
	return client
}

func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Redacted()
}

func isHTTPS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(rawURL), "https:")
	}
	return strings.EqualFold(u.Scheme, "https")
}

// Do sends one request and reads the response body to the end.
//
// A non-2xx status is not an error unless WithStatusCheck is given.
func Do(ctx context.Context, method, rawURL string, body io.Reader, opts ...Option) (*Response, error) {
	return buildOptions(opts).do(ctx, method, rawURL, body)
}

func (o *requestOptions) do(ctx context.Context, method, rawURL string, body io.Reader) (*Response, error) {
	op := "http " + strings.ToLower(method)

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range o.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if o.contentType != "" {
		req.Header.Set("Content-Type", o.contentType)
	}
	if o.basicAuth {
		req.SetBasicAuth(o.username, o.password)
	}

	target := req.URL.Redacted()
	client := o.client(rawURL)
	defer client.CloseIdleConnections()

	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(KindConnection, op, target, unwrapURLError(err))
	}
	defer resp.Body.Close()

	o.logger.Debug("http response", "method", method, "url", target, "status", resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindIO, op, target, fmt.Errorf("failed to read response body: %w", err))
	}

	if o.statusCheck && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        target,
			Body:       data,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// unwrapURLError drops the *url.Error wrapper, whose message repeats the
// method and URL already carried by *Error.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

// Get sends a GET request and returns the response body as text.
func Get(ctx context.Context, rawURL string, opts ...Option) (string, error) {
	resp, err := Do(ctx, http.MethodGet, rawURL, nil, opts...)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// GetBytes sends a GET request and returns the raw response body.
func GetBytes(ctx context.Context, rawURL string, opts ...Option) ([]byte, error) {
	resp, err := Do(ctx, http.MethodGet, rawURL, nil, opts...)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Post sends body as UTF-8 text and returns the response body as text.
func Post(ctx context.Context, rawURL, body string, opts ...Option) (string, error) {
	if !utf8.ValidString(body) {
		return "", newError(KindEncoding, "http post", redactURL(rawURL), errors.New("request body is not valid UTF-8"))
	}
	resp, err := Do(ctx, http.MethodPost, rawURL, strings.NewReader(body), opts...)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// PostBytes sends a raw body and returns the raw response body.
func PostBytes(ctx context.Context, rawURL string, body []byte, opts ...Option) ([]byte, error) {
	resp, err := Do(ctx, http.MethodPost, rawURL, bytes.NewReader(body), opts...)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostForm sends form as an application/x-www-form-urlencoded body. An
// explicit WithContentType overrides the form content type.
func PostForm(ctx context.Context, rawURL string, form url.Values, opts ...Option) (string, error) {
	for key, values := range form {
		if !utf8.ValidString(key) {
			return "", newError(KindEncoding, "http post", redactURL(rawURL), fmt.Errorf("form key %q is not valid UTF-8", key))
		}
		for _, v := range values {
			if !utf8.ValidString(v) {
				return "", newError(KindEncoding, "http post", redactURL(rawURL), fmt.Errorf("form value for %q is not valid UTF-8", key))
			}
		}
	}

	opts = append([]Option{WithContentType(formContentType)}, opts...)
	resp, err := Do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), opts...)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}
