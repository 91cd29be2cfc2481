package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/shopchat/internal/reliability"
)

var (
	httpRetryBase = 200 * time.Millisecond
	httpRetryCap  = 2 * time.Second
)

// HTTPCompleter forwards requests to a JSON completion endpoint.
//
// The endpoint receives {"system": ..., "messages": [...]} and answers with a
// JSON object carrying the text under one of text, output, message, response
// or delta. A plain-text body is accepted as the reply.
type HTTPCompleter struct {
	url        string
	client     *http.Client
	maxRetries int
}

func NewHTTPCompleter(url string, maxRetries int) *HTTPCompleter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPCompleter{
		url:        strings.TrimSpace(url),
		maxRetries: maxRetries,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if c.url == "" {
		return Response{}, ErrNotConfigured
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var resp Response
	policy := reliability.RetryPolicy{MaxRetries: c.maxRetries, Base: httpRetryBase, Cap: httpRetryCap}
	err = reliability.Retry(ctx, policy, func(int) (bool, error) {
		var (
			retryable bool
			err       error
		)
		resp, retryable, err = c.do(ctx, payload)
		return retryable, err
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (c *HTTPCompleter) do(ctx context.Context, payload []byte) (Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, reliability.IsRetryableError(err), fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("completion http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return Response{}, true, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	text := ""
	if err := json.Unmarshal(body, &obj); err != nil {
		text = strings.TrimSpace(string(body))
	} else {
		text = strings.TrimSpace(extractText(obj))
	}
	if text == "" {
		return Response{}, false, ErrEmptyResponse
	}
	return Response{Text: text}, false, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "output", "message", "response", "delta"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
