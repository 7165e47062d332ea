// Package tui renders environment/package listings with
// github.com/charmbracelet/lipgloss and picks an environment
// interactively with github.com/junegunn/fzf's matching algorithm,
// grounded in bureau's lib/ticketui/fuzzy.go (which re-exports the
// same algo.FuzzyMatchV2 call for its own ticket picker).
package tui

import (
	"sort"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// PickEnvironment runs a one-shot fuzzy filter of candidates against
// pattern and returns them best-match-first. An empty pattern returns
// candidates unchanged (alphabetical), matching `cub enter` with no
// NAME and no typed filter yet.
func PickEnvironment(candidates []string, pattern string) []string {
	if pattern == "" {
		out := append([]string(nil), candidates...)
		sort.Strings(out)
		return out
	}

	slab := util.MakeSlab(100*1024, 2048)
	runes := []rune(pattern)

	type scored struct {
		name  string
		score int
	}
	var matches []scored
	for _, c := range candidates {
		chars := util.ToChars([]byte(c))
		result, _ := algo.FuzzyMatchV2(false, true, true, &chars, runes, false, slab)
		if result.Score > 0 {
			matches = append(matches, scored{c, result.Score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
