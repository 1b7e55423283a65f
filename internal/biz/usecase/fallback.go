package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// NoTopicsNarrative is returned by the fallback when no channel yields
// any qualifying keyword.
const NoTopicsNarrative = "No clear topics were found."

const fallbackKeywordsPerChannel = 3

// minimum token length for the keyword count; short tokens are mostly
// stopwords and particles
const fallbackMinTokenLen = 5

// KeywordSummary is the deterministic local degradation path used when the
// summarization call fails. Per channel it counts lowercased whitespace
// tokens of at least fallbackMinTokenLen characters and emits the three
// most frequent, ties broken by first appearance.
func KeywordSummary(groups []domain.ChannelWindow) string {
	var lines []string
	for _, g := range groups {
		counts := make(map[string]int)
		var order []string // tokens in first-seen order
		for _, msg := range g.Messages {
			for _, word := range strings.Fields(msg.Content) {
				word = strings.ToLower(word)
				if utf8.RuneCountInString(word) < fallbackMinTokenLen {
					continue
				}
				if _, seen := counts[word]; !seen {
					order = append(order, word)
				}
				counts[word]++
			}
		}
		if len(order) == 0 {
			continue
		}

		sort.SliceStable(order, func(i, j int) bool {
			return counts[order[i]] > counts[order[j]]
		})
		top := order
		if len(top) > fallbackKeywordsPerChannel {
			top = top[:fallbackKeywordsPerChannel]
		}
		lines = append(lines, fmt.Sprintf("**#%s**: %s", g.ChannelName, strings.Join(top, ", ")))
	}

	if len(lines) == 0 {
		return NoTopicsNarrative
	}
	return strings.Join(lines, "\n")
}
