// Package client talks to the Bank Soal backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banksoal/apiserver/internal/export"
)

// HeaderAccessToken carries the session token on every authorized request.
const HeaderAccessToken = "x-access-token"

const maxErrorBody = 64 << 10

// Timeouts bounds each class of request.
type Timeouts struct {
	Metadata  time.Duration
	File      time.Duration
	Lifecycle time.Duration
	Listing   time.Duration
}

// DefaultTimeouts returns the per-operation defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Metadata:  30 * time.Second,
		File:      30 * time.Second,
		Lifecycle: 10 * time.Second,
		Listing:   15 * time.Second,
	}
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api.
	BaseURL     string
	Credentials CredentialResolver
	HTTPClient  *http.Client
	Timeouts    Timeouts
}

// Client is a typed client for the backend API. It is safe for concurrent use.
type Client struct {
	baseURL     *url.URL
	credentials CredentialResolver
	http        *http.Client
	timeouts    Timeouts
	now         func() time.Time
}

// New creates a client. Zero timeouts take their defaults.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("client: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: base URL %q must be absolute", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeouts := DefaultTimeouts()
	if cfg.Timeouts.Metadata > 0 {
		timeouts.Metadata = cfg.Timeouts.Metadata
	}
	if cfg.Timeouts.File > 0 {
		timeouts.File = cfg.Timeouts.File
	}
	if cfg.Timeouts.Lifecycle > 0 {
		timeouts.Lifecycle = cfg.Timeouts.Lifecycle
	}
	if cfg.Timeouts.Listing > 0 {
		timeouts.Listing = cfg.Timeouts.Listing
	}

	return &Client{
		baseURL:     base,
		credentials: cfg.Credentials,
		http:        httpClient,
		timeouts:    timeouts,
		now:         time.Now,
	}, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	timeout     time.Duration
}

func jsonBody(v any) (io.Reader, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// send performs the request and hands the successful response to read.
// The timeout covers reading the body.
func (c *Client) send(ctx context.Context, req request, read func(*http.Response) error) error {
	if req.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), req.body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.credentials != nil {
		if token, ok := c.credentials.Token(ctx); ok {
			httpReq.Header.Set(HeaderAccessToken, token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return wrapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, req.method, req.path)
	}
	if read == nil {
		return nil
	}
	if err := read(resp); err != nil {
		return wrapTransportError(ctx, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, method, path string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, query url.Values, in, out any) error {
	body, err := jsonBody(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req := request{method: method, path: path, query: query, body: body, timeout: timeout}
	if body != nil {
		req.contentType = "application/json"
	}

	var read func(*http.Response) error
	if out != nil {
		read = func(resp *http.Response) error {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, path, err)
			}
			return nil
		}
	}
	return c.send(ctx, req, read)
}

func (c *Client) doBlob(ctx context.Context, timeout time.Duration, path string, query url.Values) (export.Blob, string, error) {
	var (
		blob     export.Blob
		filename string
	)
	err := c.send(ctx, request{method: http.MethodGet, path: path, query: query, timeout: timeout}, func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		blob = export.Blob{Data: data, ContentType: resp.Header.Get("Content-Type")}
		filename = attachmentName(resp.Header.Get("Content-Disposition"))
		return nil
	})
	return blob, filename, err
}

// lifecycleResponse is the envelope of soft-delete, restore and purge routes.
type lifecycleResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) doLifecycle(ctx context.Context, method, path string, in any) error {
	var out lifecycleResponse
	if err := c.doJSON(ctx, c.timeouts.Lifecycle, method, path, nil, in, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{StatusCode: http.StatusInternalServerError, Method: method, Path: path, Message: out.Message}
	}
	return nil
}
