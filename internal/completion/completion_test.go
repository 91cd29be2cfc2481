package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleterAutoWithoutKeysIsDirectSearch(t *testing.T) {
	c, name, err := NewCompleter(Config{Provider: "auto"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, ProviderNone, name)
}

func TestNewCompleterAutoPrefersOpenAIThenFallsBack(t *testing.T) {
	c, name, err := NewCompleter(Config{
		Provider:        "auto",
		OpenAIAPIKey:    "sk-test",
		AnthropicAPIKey: "ak-test",
		GoogleAPIKey:    "g-test",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai+anthropic", name)

	fb, ok := c.(*FallbackCompleter)
	require.True(t, ok, "want *FallbackCompleter, got %T", c)
	assert.IsType(t, &OpenAICompleter{}, fb.Primary())
	assert.IsType(t, &AnthropicCompleter{}, fb.Secondary())
}

func TestNewCompleterAutoGeminiOnly(t *testing.T) {
	c, name, err := NewCompleter(Config{GoogleAPIKey: "g-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, name)
	assert.IsType(t, &OpenAICompleter{}, c)
}

func TestNewCompleterExplicitProviders(t *testing.T) {
	_, _, err := NewCompleter(Config{Provider: "openai"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = NewCompleter(Config{Provider: "http"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	c, name, err := NewCompleter(Config{Provider: "MOCK"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, name)
	assert.IsType(t, &MockCompleter{}, c)

	c, _, err = NewCompleter(Config{Provider: "none", OpenAIAPIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, _, err = NewCompleter(Config{Provider: "palm"}, nil)
	require.Error(t, err)
}

func TestMockCompleter(t *testing.T) {
	c := NewMockCompleter()
	resp, err := c.Complete(context.Background(), Request{
		System:   "이전 대화 내용:\n1. 사용자: iPhone 15",
		Messages: []Message{{Role: RoleUser, Content: "가격은?\n\n웹 검색 결과:\n..."}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Text, "가격은?"))
	assert.Contains(t, resp.Text, "이전 대화를 참고했습니다.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFallbackCompleterUsesFallback(t *testing.T) {
	c := NewFallbackCompleter(errCompleter{}, okCompleter{text: "fallback"})
	resp, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
}

func TestFallbackCompleterTreatsEmptyAsFailure(t *testing.T) {
	c := NewFallbackCompleter(okCompleter{}, okCompleter{text: "fallback"})
	resp, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
}

func TestFallbackCompleterSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingCompleter{text: "fallback"}
	c := NewFallbackCompleter(cancelCompleter{}, fb)
	_, err := c.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fb.calls)
}

func TestFallbackCompleterWrapsBothErrors(t *testing.T) {
	c := NewFallbackCompleter(errCompleter{}, errCompleter{})
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback completer error")
}

type errCompleter struct{}

func (errCompleter) Complete(context.Context, Request) (Response, error) {
	return Response{}, errors.New("boom")
}

type okCompleter struct {
	text string
}

func (c okCompleter) Complete(context.Context, Request) (Response, error) {
	return Response{Text: c.text}, nil
}

type cancelCompleter struct{}

func (cancelCompleter) Complete(context.Context, Request) (Response, error) {
	return Response{}, context.Canceled
}

type countingCompleter struct {
	text  string
	calls int
}

func (c *countingCompleter) Complete(context.Context, Request) (Response, error) {
	c.calls++
	return Response{Text: c.text}, nil
}
