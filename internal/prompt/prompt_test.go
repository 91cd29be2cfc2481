package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ent0n29/shopchat/internal/memory"
	"github.com/ent0n29/shopchat/internal/session"
)

func TestBuildMemoryContext(t *testing.T) {
	assert.Empty(t, BuildMemoryContext(nil))
	assert.Empty(t, BuildMemoryContext([]memory.Fact{{Text: "  "}}))

	got := BuildMemoryContext([]memory.Fact{
		{Text: "사용자 질문: iPhone 15"},
		{Text: "사용자가 iPhone에 관심을 보임: iPhone 15"},
	})
	want := memoryHeader + "\n- 사용자 질문: iPhone 15\n- 사용자가 iPhone에 관심을 보임: iPhone 15"
	assert.Equal(t, want, got)
}

func TestBuildHistoryContext(t *testing.T) {
	assert.Empty(t, BuildHistoryContext(nil))

	turns := []session.Turn{
		{UserMessage: "iPhone 15", AssistantResponse: "iPhone 15 정보입니다."},
		{UserMessage: "가격은?", AssistantResponse: "약 125만원입니다."},
	}
	got := BuildHistoryContext(turns)
	assert.True(t, strings.HasPrefix(got, historyHeader))
	assert.Contains(t, got, "1. 사용자: iPhone 15\n   어시스턴트: iPhone 15 정보입니다.")
	assert.Contains(t, got, "2. 사용자: 가격은?")
	assert.Less(t, strings.Index(got, "1. "), strings.Index(got, "2. "))
}

func TestBuildHistoryContextSkipsInFlightTurn(t *testing.T) {
	turns := []session.Turn{
		{UserMessage: "iPhone 15", AssistantResponse: "정보"},
		{UserMessage: "가격은?"},
	}
	got := BuildHistoryContext(turns)
	assert.Contains(t, got, "iPhone 15")
	assert.NotContains(t, got, "가격은?")

	assert.Empty(t, BuildHistoryContext([]session.Turn{{UserMessage: "only"}}))
}

func TestSystemPrompt(t *testing.T) {
	base := SystemPrompt("", "", "")
	assert.Contains(t, base, "상품 가격 비교 전문")
	assert.Contains(t, base, "항상 한국어로 응답")
	assert.NotContains(t, base, memoryHeader)
	assert.NotContains(t, base, "후속 질문")

	full := SystemPrompt("English", memoryHeader+"\n- a", historyHeader+"\n1. 사용자: iPhone 15")
	assert.Contains(t, full, "항상 English로 응답")
	assert.Contains(t, full, "- a")
	assert.Contains(t, full, "iPhone 15")
	assert.Contains(t, full, "후속 질문")
}

func TestSearchQueryAndMessages(t *testing.T) {
	assert.Equal(t, "iPhone 15 상품 가격 리뷰 구매", SearchQuery("  iPhone 15 "))

	msg := UserMessage("iPhone 15", "result text")
	assert.Contains(t, msg, "iPhone 15")
	assert.Contains(t, msg, "result text")

	direct := DirectSearchResult("iPhone 15", "result text")
	assert.True(t, strings.HasPrefix(direct, "🔍 'iPhone 15' 상품 검색 결과"))
	assert.Contains(t, direct, "result text")
	assert.Contains(t, direct, "정품 인증과 A/S 정보를 확인하세요")

	assert.Equal(t, "검색 중 오류가 발생했습니다: boom", SearchError(errors.New("boom")))
}

func TestDirectSearchResultWithoutResults(t *testing.T) {
	direct := DirectSearchResult("캠핑 의자", "   ")
	assert.Contains(t, direct, NoResultMessage)
	assert.True(t, strings.HasPrefix(direct, "🔍 '캠핑 의자' 상품 검색 결과"))
}
