// Package search provides the web search capability used to ground replies.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoResultText is returned when the search backend finds nothing.
const NoResultText = "No good DuckDuckGo Search Result was found"

// ErrEmptyQuery is returned for a blank search query.
var ErrEmptyQuery = errors.New("search: empty query")

// Searcher runs a web search and returns human-readable result text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Func adapts a function to Searcher.
type Func func(ctx context.Context, query string) (string, error)

func (f Func) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Static returns the same text for every query.
type Static string

func (s Static) Search(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	return string(s), nil
}

// Provider names accepted by New.
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderMock       = "mock"
)

// Config controls searcher construction.
type Config struct {
	Provider        string
	BaseURL         string
	HTMLURL         string
	Timeout         time.Duration
	MaxRetries      int
	CacheTTL        time.Duration
	CacheMaxEntries int
}

// New builds the configured searcher, wrapped in a result cache when CacheTTL > 0.
func New(cfg Config, observer CacheObserver) (Searcher, error) {
	var base Searcher
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderDuckDuckGo:
		base = NewDuckDuckGo(cfg.BaseURL, cfg.HTMLURL, cfg.Timeout, cfg.MaxRetries)
	case ProviderMock:
		base = Func(mockSearch)
	default:
		return nil, fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}

	if cfg.CacheTTL <= 0 {
		return base, nil
	}
	return NewCachedSearcher(base, cfg.CacheTTL, cfg.CacheMaxEntries, observer)
}

func mockSearch(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return fmt.Sprintf("%s: 온라인 쇼핑몰 가격 비교 결과 (모의 검색)", q), nil
}
