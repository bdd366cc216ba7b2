package analysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// wordPunct splits like a word/punctuation tokenizer: runs of word characters
// or runs of anything that is neither a word character nor space.
var wordPunct = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]+`)

// Rake ranks candidate phrases with the degree/frequency word metric. A
// candidate is a maximal run of words free of stopwords and punctuation; its
// score is the sum of its words' degree/frequency ratios. Repeated candidates
// are kept, ties keep first-occurrence order.
type Rake struct {
	stopwords map[string]struct{}
}

func NewRake() *Rake {
	return &Rake{stopwords: englishStopwords}
}

func (r *Rake) Name() string { return "rake" }

func (r *Rake) Rank(text string, _ *Parse, limit int) []string {
	candidates := r.candidates(text)
	if len(candidates) == 0 {
		return nil
	}

	degree := make(map[string]int)
	freq := make(map[string]int)
	for _, phrase := range candidates {
		for _, w := range phrase {
			degree[w] += len(phrase)
			freq[w]++
		}
	}

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, phrase := range candidates {
		var s float64
		for _, w := range phrase {
			s += float64(degree[w]) / float64(freq[w])
		}
		ranked[i] = scored{text: strings.Join(phrase, " "), score: s}
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

func (r *Rake) candidates(text string) [][]string {
	var (
		phrases [][]string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}
	for _, tok := range wordPunct.FindAllString(strings.ToLower(text), -1) {
		if _, stop := r.stopwords[tok]; stop || isPunctuation(tok) {
			flush()
			continue
		}
		current = append(current, tok)
	}
	flush()
	return phrases
}

func isPunctuation(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return false
		}
	}
	return true
}
