package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ent0n29/shopchat/internal/reliability"
)

const (
	defaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	// DefaultDuckDuckGoHTMLURL serves ranked web results as HTML.
	DefaultDuckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"
)

// maxSnippets bounds how many related topics or web results are included in one result.
const maxSnippets = 8

// DuckDuckGo queries the DuckDuckGo instant answer API. The instant answer
// API only knows encyclopedic topics, so when it has nothing and htmlURL is
// set, the HTML results page is fetched and its result snippets are used.
type DuckDuckGo struct {
	baseURL    string
	htmlURL    string
	client     *http.Client
	maxRetries int
}

func NewDuckDuckGo(baseURL, htmlURL string, timeout time.Duration, maxRetries int) *DuckDuckGo {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultDuckDuckGoURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DuckDuckGo{
		baseURL:    baseURL,
		htmlURL:    strings.TrimSpace(htmlURL),
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	body, err := d.get(ctx, d.baseURL, "application/json", map[string]string{
		"q":             query,
		"format":        "json",
		"no_html":       "1",
		"skip_disambig": "1",
	})
	if err != nil {
		return "", err
	}
	if text := parseInstantAnswer(body); text != NoResultText || d.htmlURL == "" {
		return text, nil
	}

	page, err := d.get(ctx, d.htmlURL, "text/html", map[string]string{"q": query, "kl": "kr-kr"})
	if err != nil {
		return "", fmt.Errorf("html results: %w", err)
	}
	return parseHTMLResults(page), nil
}

func (d *DuckDuckGo) get(ctx context.Context, base, accept string, query map[string]string) ([]byte, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	params := u.Query()
	for k, v := range query {
		params.Set(k, v)
	}
	u.RawQuery = params.Encode()

	var body []byte
	policy := reliability.RetryPolicy{MaxRetries: d.maxRetries, Base: 250 * time.Millisecond, Cap: 2 * time.Second}
	err = reliability.Retry(ctx, policy, func(int) (bool, error) {
		var (
			retryable bool
			err       error
		)
		body, retryable, err = d.fetch(ctx, u.String(), accept)
		return retryable, err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (d *DuckDuckGo) fetch(ctx context.Context, target, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "shopchat/1.0")

	res, err := d.client.Do(req)
	if err != nil {
		return nil, reliability.IsRetryableError(err), fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("search http status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read search response: %w", err)
	}
	return body, false, nil
}

// parseInstantAnswer flattens an instant answer payload into result text.
func parseInstantAnswer(body []byte) string {
	if !gjson.ValidBytes(body) {
		return NoResultText
	}
	doc := gjson.ParseBytes(body)

	parts := make([]string, 0, maxSnippets+3)
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(parts) >= maxSnippets+3 {
			return
		}
		seen[s] = true
		parts = append(parts, s)
	}

	heading := doc.Get("Heading").String()
	if abstract := doc.Get("AbstractText").String(); abstract != "" {
		if heading != "" {
			add(heading + ": " + abstract)
		} else {
			add(abstract)
		}
	}
	add(doc.Get("Answer").String())
	add(doc.Get("Definition").String())

	snippets := 0
	doc.Get("RelatedTopics").ForEach(func(_, topic gjson.Result) bool {
		if text := topic.Get("Text"); text.Exists() {
			add(text.String())
			snippets++
		}
		topic.Get("Topics.#.Text").ForEach(func(_, nested gjson.Result) bool {
			add(nested.String())
			snippets++
			return snippets < maxSnippets
		})
		return snippets < maxSnippets
	})

	if len(parts) == 0 {
		return NoResultText
	}
	return strings.Join(parts, " ")
}
