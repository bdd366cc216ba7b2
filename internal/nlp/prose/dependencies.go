package prose

import (
	"strings"

	"github.com/tutor-agent/backend/internal/analysis"
)

type taggedWord struct {
	text string
	tag  string
}

var lemmas = map[string]string{
	"am": "be", "is": "be", "are": "be", "was": "be", "were": "be",
	"been": "be", "being": "be", "be": "be", "'s": "be", "'re": "be", "'m": "be",
	"has": "have", "had": "have", "having": "have", "have": "have",
	"does": "do", "did": "do", "doing": "do", "do": "do",
}

func lemma(text string) string {
	lower := strings.ToLower(text)
	if l, ok := lemmas[lower]; ok {
		return l
	}
	return lower
}

func labelSentence(words []taggedWord) analysis.Sentence {
	toks := make([]analysis.Token, len(words))
	for i, w := range words {
		toks[i] = analysis.Token{Text: w.text, Tag: w.tag, Lemma: lemma(w.text), Dep: analysis.DepOther}
	}

	root := findRoot(toks)
	for i := range toks {
		toks[i].Head = root
	}
	toks[root].Dep = analysis.DepRoot
	toks[root].Head = -1

	passive := false
	// Auxiliaries may sit right before the verb or, in inverted questions,
	// before the subject.
	for j := 0; j < root; j++ {
		if isAuxCandidate(toks[j]) && isAuxiliary(toks, j) {
			toks[j].Dep = analysis.DepAux
			if toks[j].Lemma == "be" && toks[root].Tag == "VBN" {
				toks[j].Dep = analysis.DepAuxPass
				passive = true
			}
		}
	}

	if subj := firstNounHead(toks, 0, root, false); subj >= 0 {
		toks[subj].Dep = analysis.DepNsubj
		if passive {
			toks[subj].Dep = analysis.DepNsubjPass
		}
	}
	if obj := firstNounHead(toks, root+1, len(toks), true); obj >= 0 {
		toks[obj].Dep = analysis.DepDobj
		if toks[root].Lemma == "be" {
			toks[obj].Dep = analysis.DepAttr
		}
	}

	return analysis.Sentence{Tokens: toks}
}

// findRoot picks the first verb that is not an auxiliary of a later verb,
// falling back to the first noun and then the first token.
func findRoot(toks []analysis.Token) int {
	for i, t := range toks {
		if isVerb(t.Tag) && !(isAuxCandidate(t) && isAuxiliary(toks, i)) {
			return i
		}
	}
	for i, t := range toks {
		if isNounLike(t.Tag) {
			return i
		}
	}
	return 0
}

func isAuxCandidate(t analysis.Token) bool {
	switch t.Lemma {
	case "be", "have", "do":
		return true
	}
	return t.Tag == "MD"
}

// isAuxiliary reports whether toks[i] supports a later main verb in the same
// clause: do and modals take a base form, have a participle, be a participle
// or gerund.
func isAuxiliary(toks []analysis.Token, i int) bool {
	for _, t := range toks[i+1:] {
		if isClauseBreak(t.Tag) {
			return false
		}
		if isAuxCandidate(t) {
			continue
		}
		switch {
		case toks[i].Tag == "MD" || toks[i].Lemma == "do":
			if t.Tag == "VB" {
				return true
			}
		case toks[i].Lemma == "have":
			if t.Tag == "VBN" {
				return true
			}
		case toks[i].Lemma == "be":
			if t.Tag == "VBN" || t.Tag == "VBG" {
				return true
			}
		}
	}
	return false
}

// firstNounHead returns the last noun of the first noun run in [from, to).
// When skipModifiers is set, determiners, adjectives and verb particles may
// precede the run but anything else ends the search.
func firstNounHead(toks []analysis.Token, from, to int, skipModifiers bool) int {
	head := -1
	for i := from; i < to; i++ {
		t := toks[i]
		if isNounLike(t.Tag) {
			head = i
			continue
		}
		if head >= 0 {
			break
		}
		if skipModifiers && !isModifier(t.Tag) {
			break
		}
	}
	return head
}

func isVerb(tag string) bool {
	return strings.HasPrefix(tag, "VB") || tag == "MD"
}

func isNounLike(tag string) bool {
	return strings.HasPrefix(tag, "NN") || tag == "PRP"
}

func isModifier(tag string) bool {
	switch tag {
	case "DT", "PDT", "PRP$", "CD", "POS", "RP":
		return true
	}
	return strings.HasPrefix(tag, "JJ") || strings.HasPrefix(tag, "RB")
}

func isClauseBreak(tag string) bool {
	switch tag {
	case ".", ",", ":", "CC", "WDT", "WP", "WRB":
		return true
	}
	return false
}
