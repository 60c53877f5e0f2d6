package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// getEncoding lazily initializes the tokenizer. Returns nil when the
// encoding data cannot be loaded, in which case callers fall back to
// an estimate.
func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the token count of text, estimating at ~4 chars
// per token when the tokenizer is unavailable.
func CountTokens(text string) int {
	enc := getEncoding()
	if enc == nil {
		return estimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateToBudget trims text to roughly fit a token budget. The cut is
// byte-based on the estimated char/token ratio, so it is approximate but
// never exceeds the budget by more than a few tokens.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if CountTokens(text) <= budget {
		return text
	}
	limit := budget * 4
	if limit > len(text) {
		limit = len(text)
	}
	for limit > 0 && CountTokens(text[:limit]) > budget {
		limit = limit * 9 / 10
	}
	return text[:limit] + "\n// ... truncated"
}
