package policy

import "strings"

// InterestExtractor derives a product category from a user query.
// It returns false when the query shows no recognizable interest.
type InterestExtractor func(text string) (category string, ok bool)

// DefaultProductKeywords are the product categories remembered as user interests.
// Order matters: the first keyword contained in the query wins.
var DefaultProductKeywords = []string{
	"iPhone", "Galaxy", "MacBook", "iPad", "AirPods",
	"노트북", "스마트폰", "태블릿", "이어폰", "카메라",
}

// KeywordExtractor matches keywords by case-sensitive containment in list order.
func KeywordExtractor(keywords []string) InterestExtractor {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	return func(text string) (string, bool) {
		for _, kw := range kws {
			if strings.Contains(text, kw) {
				return kw, true
			}
		}
		return "", false
	}
}
