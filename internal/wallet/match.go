package wallet

import (
	"strings"
	"unicode/utf8"
)

// minMatchTokenLen is the length a word must exceed to take part in name
// matching. Shorter words ("the", "at", years like "24") are too common to
// tell events apart.
const minMatchTokenLen = 3

// NamesMatch decides whether two extracted event names refer to the same
// event. Names are compared by their long words; any shared word is enough.
// When either name has no long words the whole names are compared
// case-insensitively. Empty names never match.
func NamesMatch(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}

	wordsA := significantWords(a)
	wordsB := significantWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return strings.ToLower(a) == strings.ToLower(b)
	}

	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			return true
		}
	}
	return false
}

func significantWords(name string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if utf8.RuneCountInString(w) > minMatchTokenLen {
			words[w] = struct{}{}
		}
	}
	return words
}

// SuggestCommonName proposes a name for the event that results from merging
// source into target: the words of source that also appear in target, in
// source order. With nothing in common the target name wins.
func SuggestCommonName(source, target string) string {
	if source == "" || target == "" {
		if source != "" {
			return source
		}
		return target
	}

	targetWords := strings.Fields(target)
	var common []string
	for _, sw := range strings.Fields(source) {
		if utf8.RuneCountInString(sw) <= 1 {
			continue
		}
		for _, tw := range targetWords {
			if strings.EqualFold(sw, tw) {
				common = append(common, sw)
				break
			}
		}
	}

	if len(common) == 0 {
		return target
	}
	return strings.Join(common, " ")
}
