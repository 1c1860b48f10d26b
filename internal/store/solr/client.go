// Package solr is a document store backed by an Apache Solr server.
//
// Documents are sent to a collection's JSON update handler and made
// visible with an explicit commit. Requests are retried on connection
// errors and 5xx responses.
package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/JonMunkholm/docingest/internal/document"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultRetryMax       = 3
)

// Config configures a Client.
type Config struct {
	// URL is the Solr base URL. It is normalized to end in /solr/.
	URL string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	RetryMax       int
}

// Error is a non-2xx response from Solr.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("solr: status %d", e.StatusCode)
	}
	return fmt.Sprintf("solr: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Solr server. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *retryablehttp.Client
}

// New creates a Client. A nil logger discards retry logging.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse solr url: %w", err)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.RequestTimeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if logger != nil {
		rc.Logger = logger
	}

	return &Client{baseURL: u, http: rc}, nil
}

// NormalizeURL returns raw with a trailing /solr/ path segment, adding it
// when missing.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("solr url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse solr url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("solr url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("solr url %q: missing host", raw)
	}

	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, "/solr") {
		path += "/solr"
	}
	u.Path = path + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Add posts docs to the collection's update handler without committing.
func (c *Client) Add(ctx context.Context, collection string, docs []document.Document) error {
	body, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	return c.update(ctx, collection, body)
}

// AddOne posts a single document.
func (c *Client) AddOne(ctx context.Context, collection string, doc document.Document) error {
	return c.Add(ctx, collection, []document.Document{doc})
}

// Commit issues a hard commit on the collection.
func (c *Client) Commit(ctx context.Context, collection string) error {
	return c.update(ctx, collection, []byte(`{"commit":{}}`))
}

// Ping checks that the server answers its system info handler.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "admin/info/system", url.Values{"wt": {"json"}}, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ListCollections returns the server's collections in name order. A server
// not running in SolrCloud mode rejects the Collections API; its cores are
// listed instead.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "admin/collections", url.Values{"action": {"LIST"}, "wt": {"json"}}, nil)
	if err != nil {
		return nil, err
	}

	var cloud struct {
		Collections []string `json:"collections"`
	}
	err = c.do(req, &cloud)
	var se *Error
	switch {
	case err == nil:
		names := append([]string{}, cloud.Collections...)
		slices.Sort(names)
		return names, nil
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		return c.listCores(ctx)
	default:
		return nil, fmt.Errorf("list collections: %w", err)
	}
}

func (c *Client) listCores(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "admin/cores", url.Values{"action": {"STATUS"}, "wt": {"json"}}, nil)
	if err != nil {
		return nil, err
	}

	var standalone struct {
		Status map[string]json.RawMessage `json:"status"`
	}
	if err := c.do(req, &standalone); err != nil {
		return nil, fmt.Errorf("list cores: %w", err)
	}

	names := make([]string, 0, len(standalone.Status))
	for name := range standalone.Status {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (c *Client) update(ctx context.Context, collection string, body []byte) error {
	req, err := c.newRequest(ctx, http.MethodPost, collectionPath(collection, "update"), url.Values{"wt": {"json"}}, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body []byte) (*retryablehttp.Request, error) {
	u := *c.baseURL
	u.Path += path
	u.RawPath = ""
	u.RawQuery = params.Encode()

	var rawBody any
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequest(method, u.String(), rawBody)
	if err != nil {
		return nil, fmt.Errorf("build solr request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes req and decodes a 2xx response body into out when out is
// non-nil.
func (c *Client) do(req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("solr request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode solr response: %w", err)
	}
	return nil
}

// responseError reads Solr's JSON error envelope, falling back to the raw
// body text.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error struct {
			Msg string `json:"msg"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Msg != "" {
		msg = envelope.Error.Msg
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

// collectionPath joins a collection name and a handler path.
func collectionPath(collection, handler string) string {
	return collection + "/" + handler
}
