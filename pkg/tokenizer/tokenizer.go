// Package tokenizer estimates token counts for providers that do not report
// usage, so completion cost can still be approximated.
package tokenizer

import (
	"strings"
)

// Estimate approximates the token count of English text at about four
// tokens per three words. Empty text counts as zero.
func Estimate(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(words*4/3, 1)
}

// EstimateAll sums Estimate over every text.
func EstimateAll(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += Estimate(t)
	}
	return n
}
