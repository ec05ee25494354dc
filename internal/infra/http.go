package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrowserUserAgent is the user agent sent with every outbound request.
// Several upstream sources (CFTC, Yahoo) reject clients without a
// realistic one.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPClient is the shared HTTP client. Per-call deadlines come from the
// request context; the client timeout is a hard upper bound.
var HTTPClient = &http.Client{
	Timeout: 60 * time.Second,
}

// ErrHTTP wraps a non-success HTTP response with its status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// DoGet performs a GET request with browser-like headers, returning the
// response body and status code. The caller must close the returned
// ReadCloser. Responses with status >= 400 are returned as *ErrHTTP.
func DoGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.StatusCode, nil
}

// DoGetBytes performs a GET request and reads the whole body, capped at
// maxBytes (0 means no explicit cap).
func DoGetBytes(ctx context.Context, url string, headers map[string]string, maxBytes int64) ([]byte, error) {
	body, _, err := DoGet(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	if maxBytes > 0 {
		r = io.LimitReader(body, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
