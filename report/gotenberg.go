package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRenderTimeout indicates the rendering request exceeded the configured timeout.
	ErrRenderTimeout = errors.New("report: render timeout")
	// ErrInvalidResponse indicates Gotenberg returned a non-success status code.
	ErrInvalidResponse = errors.New("report: invalid renderer response")
	// ErrDocumentTooSmall indicates the generated PDF was below the minimum expected size.
	ErrDocumentTooSmall = errors.New("report: pdf below minimum size")
)

const (
	defaultMinSize = 1024
	defaultRetries = 2
	defaultTimeout = 10 * time.Second
)

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	timeout    time.Duration
	minSize    int
}

// NewClient constructs a new client. An empty baseURL is rejected.
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    defaultRetries,
		timeout:    defaultTimeout,
		minSize:    defaultMinSize,
	}, nil
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document using Gotenberg. Server
// errors, timeouts and undersized documents are retried.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	// A4 portrait, inches.
	for _, field := range [][2]string{
		{"paperWidth", "8.27"},
		{"paperHeight", "11.7"},
		{"marginTop", "0.4"},
		{"marginBottom", "0.4"},
		{"marginLeft", "0.4"},
		{"marginRight", "0.4"},
	} {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	payload := body.Bytes()
	contentType := writer.FormDataContentType()

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		data, retry, err := c.post(ctx, payload, contentType)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("render pdf failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte, contentType string) ([]byte, bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, classifyNetError(err)
	}
	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, false, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	case readErr != nil:
		return nil, true, readErr
	case len(data) < c.minSize:
		return nil, true, ErrDocumentTooSmall
	}
	return data, false, nil
}

func classifyNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrRenderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrRenderTimeout
	}
	return err
}
