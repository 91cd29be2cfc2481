package completion

import (
	"context"
	"errors"
	"fmt"
)

// FallbackCompleter attempts a primary completer first and falls back on error.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
}

func NewFallbackCompleter(primary Completer, fallback Completer) *FallbackCompleter {
	return &FallbackCompleter{
		primary:  primary,
		fallback: fallback,
	}
}

// Primary returns the preferred completer used before fallback.
func (c *FallbackCompleter) Primary() Completer {
	if c == nil {
		return nil
	}
	return c.primary
}

// Secondary returns the fallback completer.
func (c *FallbackCompleter) Secondary() Completer {
	if c == nil {
		return nil
	}
	return c.fallback
}

func (c *FallbackCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.primary == nil {
		if c != nil && c.fallback != nil {
			return c.fallback.Complete(ctx, req)
		}
		return Response{}, fmt.Errorf("fallback completer misconfigured: %w", ErrNotConfigured)
	}

	resp, err := c.primary.Complete(ctx, req)
	if err == nil && resp.Text != "" {
		return resp, nil
	}
	if err == nil {
		err = ErrEmptyResponse
	}
	// Caller cancellation is returned as-is.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Response{}, err
	}
	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary completer error: %w; fallback completer error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
