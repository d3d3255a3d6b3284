package kgraph

import (
	"regexp"
	"strings"
	"unicode"
)

// stopwords are removed before Chinese n-gram extraction.
var stopwords = map[string]bool{
	"的": true, "了": true, "是": true, "我": true, "你": true, "他": true,
	"她": true, "它": true, "们": true, "这": true, "那": true, "和": true,
	"在": true, "也": true, "就": true, "都": true, "很": true, "不": true,
	"有": true, "去": true, "吗": true, "呢": true, "啊": true, "吧": true,
}

var latinToken = regexp.MustCompile(`[A-Za-z0-9]{3,}`)

// HeuristicKeywords extracts 2-4 character Chinese n-grams (after removing
// stopword characters) and 3+ character Latin tokens from query, used as a
// fallback when the LLM keyword extraction call fails (spec.md §4.3).
func HeuristicKeywords(query string) []string {
	runes := []rune(query)
	var kept []rune
	for _, r := range runes {
		if unicode.Is(unicode.Han, r) && stopwords[string(r)] {
			continue
		}
		kept = append(kept, r)
	}
	cleaned := string(kept)

	seen := make(map[string]bool)
	var out []string

	for _, tok := range latinToken.FindAllString(cleaned, -1) {
		lower := strings.ToLower(tok)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, tok)
		}
	}

	var han []rune
	for _, r := range cleaned {
		if unicode.Is(unicode.Han, r) {
			han = append(han, r)
		}
	}
	for n := 4; n >= 2; n-- {
		for i := 0; i+n <= len(han); i++ {
			gram := string(han[i : i+n])
			if !seen[gram] {
				seen[gram] = true
				out = append(out, gram)
			}
		}
	}

	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
