package remotetable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Default transport bounds. The connect timeout and the overall timeout are
// independent: a slow server that accepts quickly is still cut off after
// DefaultTimeout.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 30 * time.Second
	DefaultUserAgent      = "remotesql"
)

// Binding is the endpoint a table reads from. It is fixed at creation time.
type Binding struct {
	URL   string
	Query string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithConnectTimeout bounds the TCP (and TLS) connection setup.
func WithConnectTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.connectTimeout = d
		}
	}
}

// WithTimeout bounds the whole request, body read included.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the HTTP client. The timeouts configured on the
// Fetcher are not applied to a caller supplied client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithFetchLogger sets the logger used for request tracing.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fetcher performs the single POST that backs a remote table. A Fetcher is
// safe for concurrent use and is meant to be shared by every table created
// through a module, so connections are pooled process wide.
type Fetcher struct {
	client         *http.Client
	connectTimeout time.Duration
	timeout        time.Duration
	userAgent      string
	logger         *slog.Logger
}

// NewFetcher creates a Fetcher with its own HTTP client.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		connectTimeout: DefaultConnectTimeout,
		timeout:        DefaultTimeout,
		userAgent:      DefaultUserAgent,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = newHTTPClient(f.connectTimeout, f.timeout)
	}
	return f
}

func newHTTPClient(connectTimeout, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ConnectTimeout returns the configured connection timeout.
func (f *Fetcher) ConnectTimeout() time.Duration { return f.connectTimeout }

// Timeout returns the configured overall timeout.
func (f *Fetcher) Timeout() time.Duration { return f.timeout }

// Fetch POSTs b.Query to b.URL and returns the rows of the JSON array the
// server answers with. It never retries.
func (f *Fetcher) Fetch(ctx context.Context, b Binding) ([]Value, error) {
	start := time.Now()
	logger := f.logger.With(slog.String("url", b.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, strings.NewReader(b.Query))
	if err != nil {
		return nil, &FetchError{Kind: FetchTransport, URL: b.URL, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("remote fetch failed", slog.String("error", err.Error()))
		return nil, &FetchError{Kind: FetchTransport, URL: b.URL, Message: transportMessage(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Debug("remote fetch rejected", slog.Int("status", resp.StatusCode))
		return nil, &FetchError{
			Kind:       FetchHTTPStatus,
			URL:        b.URL,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: FetchTransport, URL: b.URL, Message: transportMessage(err), Err: err}
	}

	rows, err := decodeRows(body)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.URL = b.URL
		}
		return nil, err
	}

	logger.Debug("remote fetch complete",
		slog.Int("rows", len(rows)),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

// decodeRows validates the payload shape: a top level array, or an object
// carrying an "error" member.
func decodeRows(body []byte) ([]Value, error) {
	doc, err := Parse(body)
	if err != nil {
		return nil, &FetchError{Kind: FetchInvalidPayload, Message: ErrInvalidJSON.Error(), Err: err}
	}

	if doc.IsArray() {
		return doc.Items(), nil
	}

	if remote, ok := doc.Get("error"); ok {
		return nil, &FetchError{Kind: FetchRemote, Message: remoteMessage(remote)}
	}

	return nil, &FetchError{
		Kind:    FetchInvalidPayload,
		Message: fmt.Sprintf("expected a JSON array, got %s", doc.Kind()),
	}
}

func remoteMessage(v Value) string {
	if v.Kind() == KindString {
		return v.Str()
	}
	return v.Compact()
}

func transportMessage(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout: " + err.Error()
	}
	return err.Error()
}
