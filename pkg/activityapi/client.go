package activityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/volunteer-hub-web/internal/observability"
)

// DefaultBaseURL is used when no API base URL is configured.
const DefaultBaseURL = "http://localhost:3001/api"

const maxResponseBytes = 8 << 20

// Config configures the API client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client issues JSON and multipart requests against the activities API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  zerolog.Logger
}

// Request describes a single API call. Body is encoded as JSON unless it is a
// *Multipart, in which case the multipart content type is sent as-is.
type Request struct {
	Method  string
	Path    string
	Route   string
	Query   url.Values
	Body    any
	Timeout time.Duration
}

// Multipart is a pre-encoded multipart/form-data body.
type Multipart struct {
	ContentType string
	Body        io.Reader
	Length      int64
}

// NewFileMultipart encodes content as a single file part under field.
func NewFileMultipart(field, filename, contentType string, content []byte) (*Multipart, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return &Multipart{
		ContentType: writer.FormDataContentType(),
		Body:        bytes.NewReader(buf.Bytes()),
		Length:      int64(buf.Len()),
	}, nil
}

// New constructs an API client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL: base,
		timeout: timeout,
		// Per-request deadlines are applied through the context so uploads
		// can run longer than ordinary calls.
		http:   &http.Client{Transport: otelhttp.NewTransport(transport)},
		logger: logger.With().Str("component", "activity_api_client").Logger(),
	}, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs the request and decodes a 2xx JSON body into out when out is
// non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	route := req.Route
	if route == "" {
		route = req.Path
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.buildRequest(ctx, method, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		observability.APIRequests().WithLabelValues(method, route, "transport_error").Inc()
		return c.transportError(method+" "+route, timeout, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	statusLabel := strconv.Itoa(resp.StatusCode)
	observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
	observability.APILatency().WithLabelValues(method, route).Observe(time.Since(start).Seconds())

	if readErr != nil {
		return c.transportError(method+" "+route, timeout, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{Status: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
		c.logger.Warn().
			Str("method", method).
			Str("route", route).
			Int("status", resp.StatusCode).
			Str("message", httpErr.Message).
			Msg("api call failed")
		return httpErr
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &ParseError{Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ParseError{Err: err}
	}

	return nil
}

func (c *Client) buildRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
		length      int64 = -1
	)

	switch payload := req.Body.(type) {
	case nil:
	case *Multipart:
		body = payload.Body
		contentType = payload.ContentType
		length = payload.Length
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
		length = int64(len(encoded))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if length >= 0 && body != nil {
		httpReq.ContentLength = length
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if id := CorrelationID(ctx); id != "" {
		httpReq.Header.Set(CorrelationHeader, id)
	}

	return httpReq, nil
}

func (c *Client) transportError(op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout.String()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Timeout: timeout.String()}
	}
	c.logger.Error().Err(err).Str("op", op).Msg("api call failed without response")
	return &NetworkError{Op: op, Err: err}
}

func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return payload.Message
	}
	return fmt.Sprintf("HTTP error, status %d", status)
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
