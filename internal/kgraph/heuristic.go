package kgraph

import "strings"

// levenshtein returns the edit distance between a and b, operating on
// runes so multi-byte (Chinese) entity names compare correctly.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	curr := make([]int, len(rb)+1)

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// heuristicSameEntity reports whether a and b are likely the same
// real-world entity by cheap, AI-free comparison (§4.3 heuristic cleanup
// pass): equal modulo case, one is a known alias of the other, or they
// are short names within Levenshtein distance 1.
func heuristicSameEntity(a Node, b Node) bool {
	if strings.EqualFold(a.Entity, b.Entity) {
		return true
	}
	if hasAlias(a, b.Entity) || hasAlias(b, a.Entity) {
		return true
	}
	ra, rb := []rune(a.Entity), []rune(b.Entity)
	if len(ra) <= 6 && len(rb) <= 6 && levenshtein(a.Entity, b.Entity) <= 1 {
		return true
	}
	return false
}

func hasAlias(n Node, name string) bool {
	for _, alias := range n.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}
