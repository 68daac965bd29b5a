package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultTimeout is applied to every request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Transport is the HTTP surface the sync engine needs.
type Transport interface {
	Get(ctx context.Context, url string) Response
	Post(ctx context.Context, url string, body any) Response
	Put(ctx context.Context, url string, body any) Response
}

// Response is a normalized reply. Exactly one of Body and Errors is meaningful:
// a non-empty Errors means the request failed.
type Response struct {
	StatusCode int
	Body       []byte
	Errors     string
}

// Failed reports whether the response is on the errors branch.
func (r Response) Failed() bool {
	return r.Errors != ""
}

// Err returns the errors branch as an error, nil on success.
func (r Response) Err() error {
	if !r.Failed() {
		return nil
	}
	return &StatusError{StatusCode: r.StatusCode, Message: r.Errors}
}

// JSON returns the body parsed for field probing.
func (r Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

type client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func New(timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.L(),
	}
}

func (c *client) Get(ctx context.Context, url string) Response {
	return c.do(ctx, http.MethodGet, url, nil)
}

func (c *client) Post(ctx context.Context, url string, body any) Response {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *client) Put(ctx context.Context, url string, body any) Response {
	return c.do(ctx, http.MethodPut, url, body)
}

func (c *client) do(ctx context.Context, method, url string, body any) Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Response{Errors: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Response{Errors: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending request", zap.String("method", method), zap.String("url", redact(url)))
	res, err := c.httpClient.Do(req)
	if err != nil {
		// network and timeout failures carry no status.
		return Response{Errors: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{StatusCode: res.StatusCode, Errors: err.Error()}
	}
	return normalize(res.StatusCode, data)
}

func normalize(status int, data []byte) Response {
	parsed := gjson.ParseBytes(data)
	if parsed.IsObject() {
		if errs := parsed.Get("errors"); errs.Exists() && errs.Type != gjson.Null {
			msg := errorText(errs)
			if msg == "" {
				// an empty errors list still fails the call.
				msg = errs.Raw
			}
			return Response{StatusCode: status, Errors: msg}
		}
	}
	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(data))
		if parsed.IsObject() && parsed.Get("message").Exists() {
			msg = parsed.Get("message").String()
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return Response{StatusCode: status, Errors: msg}
	}
	return Response{StatusCode: status, Body: data}
}

func errorText(errs gjson.Result) string {
	if errs.IsArray() {
		parts := make([]string, 0, len(errs.Array()))
		for _, e := range errs.Array() {
			parts = append(parts, e.String())
		}
		return strings.Join(parts, ", ")
	}
	return errs.String()
}

// redact strips the query string, it carries the user token on cloud calls.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
