package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockCompleter provides deterministic local replies when no model is available.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (c *MockCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Text: buildMockReply(req)}, nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(lastUserMessage(req))
	if i := strings.Index(base, "\n"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if base == "" {
		base = "요청"
	}

	reply := fmt.Sprintf("%s에 대한 검색 결과를 정리했습니다.", base)
	if strings.Contains(req.System, "이전 대화 내용:") {
		reply += "\n이전 대화를 참고했습니다."
	}
	return reply
}
