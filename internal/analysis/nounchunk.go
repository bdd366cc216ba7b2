package analysis

import (
	"sort"
	"strings"
)

// NounChunks ranks noun phrases (adjective/noun runs ending in a noun) by how
// often their words recur across the question. Each distinct chunk appears
// once.
type NounChunks struct{}

func (NounChunks) Name() string { return "nounchunk" }

func (NounChunks) Rank(_ string, parse *Parse, limit int) []string {
	if parse == nil {
		return nil
	}

	var chunks [][]string
	for _, sent := range parse.Sentences {
		var run []string
		var lastNoun int
		flush := func() {
			if lastNoun > 0 {
				chunks = append(chunks, run[:lastNoun])
			}
			run, lastNoun = nil, 0
		}
		for _, tok := range sent.Tokens {
			switch {
			case isNoun(tok.Tag):
				run = append(run, strings.ToLower(tok.Text))
				lastNoun = len(run)
			case strings.HasPrefix(tok.Tag, "JJ"):
				run = append(run, strings.ToLower(tok.Text))
			default:
				flush()
			}
		}
		flush()
	}
	if len(chunks) == 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, c := range chunks {
		for _, w := range c {
			freq[w]++
		}
	}

	type scored struct {
		text  string
		score int
	}
	seen := make(map[string]struct{})
	var ranked []scored
	for _, c := range chunks {
		text := strings.Join(c, " ")
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		s := 0
		for _, w := range c {
			s += freq[w]
		}
		ranked = append(ranked, scored{text: text, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.text
	}
	return out
}

func isNoun(tag string) bool {
	return strings.HasPrefix(tag, "NN")
}
