package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"attendify-backend/internal/models"
)

const (
	minAnswerRunes  = 5
	maxWordRepeats  = 3
	MaxAnswerLength = 500
)

// DefaultStopPhrases are low-effort answers rejected before any keyword or
// semantic check.
func DefaultStopPhrases() []string {
	return []string{
		"yes", "no", "yeah", "yep", "nope",
		"ok", "okay",
		"present", "here", "present sir", "present mam",
		"done", "completed",
		"idk", "i dont know", "dont know", "dunno",
		"attendance", "marked", "marking",
	}
}

// HardFilter applies the deterministic rejection rules. It is safe for
// concurrent use once built.
type HardFilter struct {
	stop map[string]struct{}
}

func NewHardFilter(stopPhrases []string) *HardFilter {
	if stopPhrases == nil {
		stopPhrases = DefaultStopPhrases()
	}
	stop := make(map[string]struct{}, len(stopPhrases))
	for _, p := range stopPhrases {
		if n := normalizePhrase(p); n != "" {
			stop[n] = struct{}{}
		}
	}
	return &HardFilter{stop: stop}
}

// Check returns the rejection reason, or "" when the answer passes.
func (f *HardFilter) Check(answer string) string {
	trimmed := strings.TrimSpace(answer)
	if utf8.RuneCountInString(trimmed) < minAnswerRunes {
		return models.ReasonTooShort
	}

	if _, ok := f.stop[normalizePhrase(trimmed)]; ok {
		return models.ReasonLowEffort
	}

	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(trimmed)) {
		counts[w]++
		if counts[w] > maxWordRepeats {
			return models.ReasonRepetition
		}
	}

	return ""
}

// normalizePhrase lowercases s, drops everything that is not a letter or
// whitespace and collapses runs of whitespace.
func normalizePhrase(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MatchKeyword reports whether answer contains at least one keyword,
// case-insensitively. An empty keyword list never matches.
func MatchKeyword(answer string, keywords []string) bool {
	lower := strings.ToLower(answer)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// NormalizeKeywords trims keywords and drops empties and case-insensitive
// duplicates, keeping first-seen order.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}
