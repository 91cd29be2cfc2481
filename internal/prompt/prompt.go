// Package prompt renders the texts exchanged with the completion model and
// the fixed user-facing messages of the shopping assistant.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ent0n29/shopchat/internal/memory"
	"github.com/ent0n29/shopchat/internal/session"
)

const (
	// EmptyQueryMessage is returned for a blank query.
	EmptyQueryMessage = "검색할 상품명을 입력해주세요."
	// SearchErrorPrefix precedes the error text when even direct search fails.
	SearchErrorPrefix = "검색 중 오류가 발생했습니다: "
	// EmptyMessageDetail is the HTTP 400 detail for a blank chat message.
	EmptyMessageDetail = "메시지가 비어있습니다"
	// NoResultMessage stands in for an empty search result.
	NoResultMessage = "검색 결과를 가져올 수 없습니다."

	// DefaultLanguage is the response language when none is configured.
	DefaultLanguage = "한국어"

	searchIntentTerms = "상품 가격 리뷰 구매"
	memoryHeader      = "사용자에 대해 기억하고 있는 정보:"
	historyHeader     = "이전 대화 내용:"
)

// BuildMemoryContext renders remembered facts as a bulleted block.
// It returns "" when there are no facts.
func BuildMemoryContext(facts []memory.Fact) string {
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(memoryHeader)
	for _, line := range lines {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}

// BuildHistoryContext renders prior turns as a numbered transcript.
// A trailing turn still waiting for its response is left out.
func BuildHistoryContext(turns []session.Turn) string {
	if n := len(turns); n > 0 && turns[n-1].Pending() {
		turns = turns[:n-1]
	}
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(historyHeader)
	for i, t := range turns {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". 사용자: ")
		b.WriteString(strings.TrimSpace(t.UserMessage))
		b.WriteString("\n   어시스턴트: ")
		b.WriteString(strings.TrimSpace(t.AssistantResponse))
	}
	return b.String()
}

// SystemPrompt builds the price-comparison persona with the optional contexts.
func SystemPrompt(language, memoryContext, historyContext string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	b.WriteString("당신은 상품 가격 비교 전문 AI 어시스턴트입니다.\n")
	b.WriteString("사용자가 요청한 상품에 대해 웹 검색 결과를 바탕으로 최저가 가격 정보를 제공합니다.\n\n")
	b.WriteString("검색 결과를 바탕으로 다음과 같은 정보를 포함하여 응답해주세요:\n")
	b.WriteString("- 상품명과 브랜드\n")
	b.WriteString("- 주요 특징 및 사양\n")
	b.WriteString("- 가격 정보 (가능한 경우)\n")
	b.WriteString("- 구매 가능한 온라인 쇼핑몰\n")
	b.WriteString("- 사용자 리뷰나 평점 (있는 경우)\n\n")
	fmt.Fprintf(&b, "항상 %s로 응답하며, 정확하고 유용한 정보를 제공하세요.", language)

	if memoryContext = strings.TrimSpace(memoryContext); memoryContext != "" {
		b.WriteString("\n\n")
		b.WriteString(memoryContext)
	}
	if historyContext = strings.TrimSpace(historyContext); historyContext != "" {
		b.WriteString("\n\n")
		b.WriteString(historyContext)
		b.WriteString("\n\n이전 대화를 참고하여 후속 질문(예: \"가격은?\", \"그거 어디서 사?\")이 무엇을 가리키는지 파악한 뒤 답변하세요.")
	}
	return b.String()
}

// SearchQuery appends the shopping intent terms to the user's query.
func SearchQuery(query string) string {
	return strings.TrimSpace(query) + " " + searchIntentTerms
}

// UserMessage carries the query and the raw search results to the model.
func UserMessage(query, searchResults string) string {
	var b strings.Builder
	b.WriteString("다음 상품에 대해 검색해주세요: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n웹 검색 결과:\n")
	b.WriteString(strings.TrimSpace(searchResults))
	return b.String()
}

// DirectSearchResult formats raw search results with general shopping tips.
func DirectSearchResult(query, searchResults string) string {
	searchResults = strings.TrimSpace(searchResults)
	if searchResults == "" {
		searchResults = NoResultMessage
	}
	return fmt.Sprintf(`🔍 '%s' 상품 검색 결과

%s

📝 추천사항:
• 여러 쇼핑몰에서 가격을 비교해보세요
• 사용자 리뷰와 평점을 확인하세요
• 배송비와 반품 정책을 확인하세요
• 정품 인증과 A/S 정보를 확인하세요

※ 구체적인 가격과 재고는 각 쇼핑몰에서 직접 확인해주세요.`, strings.TrimSpace(query), searchResults)
}

// SearchError renders the text returned when even direct search fails.
func SearchError(err error) string {
	if err == nil {
		return SearchErrorPrefix
	}
	return SearchErrorPrefix + err.Error()
}
