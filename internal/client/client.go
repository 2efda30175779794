// Package client talks to the invoice backend over its HTTP contract.
//
// Endpoints (relative to the configured base URL):
//   - POST /upload          multipart batch upload, repeated "files" field
//   - GET  /invoices        invoice list, optional vendor / payment_status filters
//   - GET  /invoices/{id}   single invoice
//   - GET  /logs            upload history, most recent first
//   - GET  /export          spreadsheet of all invoices (opaque)
//   - GET  /health          liveness probe
//
// Every method takes a context. JSON calls are additionally bounded by the
// client's request timeout and Export by it until the response headers
// arrive. Uploads are bounded only by the caller's context.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// DefaultTimeout bounds non-upload requests.
const DefaultTimeout = 30 * time.Second

// maxErrorExcerpt limits how much of an error body ends up in APIError.
const maxErrorExcerpt = 200

// Client is a backend API client.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the timeout for non-upload requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https: %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     logger.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ExportURL returns the absolute URL of the spreadsheet export.
func (c *Client) ExportURL() string {
	return c.endpoint("/export", nil)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ListInvoices fetches the invoice list. Only the parameters present in
// query are sent.
func (c *Client) ListInvoices(ctx context.Context, query url.Values) ([]models.Invoice, error) {
	const op = "ListInvoices"

	var invoices []models.Invoice
	if err := c.getJSON(ctx, op, c.endpoint("/invoices", query), &invoices); err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return invoices, nil
}

// GetInvoice fetches one invoice by id.
func (c *Client) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	const op = "GetInvoice"

	if strings.TrimSpace(id) == "" {
		return nil, NewAPIError(op, 0, ErrNotFound, "empty invoice id")
	}

	var inv models.Invoice
	if err := c.getJSON(ctx, op, c.endpoint("/invoices/"+url.PathEscape(id), nil), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListLogs fetches the upload history.
func (c *Client) ListLogs(ctx context.Context) ([]models.UploadLogEntry, error) {
	const op = "ListLogs"

	var logs []models.UploadLogEntry
	if err := c.getJSON(ctx, op, c.endpoint("/logs", nil), &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.UploadLogEntry{}
	}
	return logs, nil
}

// Health calls the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) (string, error) {
	const op = "Health"

	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, op, c.endpoint("/health", nil), &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// ExportInfo describes a downloaded export.
type ExportInfo struct {
	Filename    string
	ContentType string
	Bytes       int64
}

// Export streams the spreadsheet export into w without interpreting it.
// The request timeout covers waiting for the response headers; the body
// download is bounded only by ctx.
func (c *Client) Export(ctx context.Context, w io.Writer) (*ExportInfo, error) {
	const op = "Export"

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	headerTimer := time.AfterFunc(c.timeout, func() {
		cancel(context.DeadlineExceeded)
	})
	resp, err := c.do(ctx, op, http.MethodGet, c.ExportURL(), nil, "")
	headerTimer.Stop()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return nil, NewAPIError(op, resp.StatusCode, ErrNoResponse, "reading export body: "+err.Error())
	}

	info := &ExportInfo{
		Filename:    "invoices.xlsx",
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       n,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		info.Filename = params["filename"]
	}

	c.log.Debug().Str("file", info.Filename).Int64("bytes", n).Msg("Export downloaded")
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, op, target string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, op, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewAPIError(op, resp.StatusCode, ErrInvalidResponse, err.Error())
	}
	return nil
}

// do sends the request and maps transport failures and error statuses to
// APIError. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, NewAPIError(op, 0, err, "building request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if pr, ok := body.(*progressReader); ok {
		req.ContentLength = pr.total
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Str("url", target).Msg("Request failed without response")
		if ctx.Err() != nil {
			return nil, NewAPIError(op, 0, fmt.Errorf("%w: %w", ErrNoResponse, context.Cause(ctx)), "")
		}
		return nil, NewAPIError(op, 0, ErrNoResponse, err.Error())
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request completed")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
	details := strings.TrimSpace(string(excerpt))
	if resp.StatusCode == http.StatusNotFound {
		return nil, NewAPIError(op, resp.StatusCode, ErrNotFound, details)
	}
	return nil, NewAPIError(op, resp.StatusCode, ErrUnexpectedStatus, details)
}
