package analysis

import "strings"

// DependencyRelations emits one triple per clause root that has both a
// nominal or passive subject on its left and a direct object or attribute on
// its right. The first matching dependent on each side wins.
type DependencyRelations struct{}

func (DependencyRelations) Name() string { return "dependency" }

func (DependencyRelations) Extract(parse *Parse) []Triple {
	if parse == nil {
		return nil
	}
	var triples []Triple
	for _, sent := range parse.Sentences {
		for i, tok := range sent.Tokens {
			if tok.Dep != DepRoot {
				continue
			}
			subj, ok := firstChild(sent.Tokens, i, true, DepNsubj, DepNsubjPass)
			if !ok {
				continue
			}
			obj, ok := firstChild(sent.Tokens, i, false, DepDobj, DepAttr)
			if !ok {
				continue
			}
			triples = append(triples, Triple{Subject: subj.Text, Predicate: tok.Text, Object: obj.Text})
		}
	}
	return triples
}

// CopulaRelations reads "X <cue> Y" statements: the subject of a root whose
// text is the cue, and everything after the cue up to the closing punctuation.
type CopulaRelations struct {
	Cue string
}

func (c CopulaRelations) Name() string { return "copula" }

func (c CopulaRelations) Extract(parse *Parse) []Triple {
	if parse == nil {
		return nil
	}
	cue := strings.ToLower(c.Cue)
	var triples []Triple
	for _, sent := range parse.Sentences {
		for i, tok := range sent.Tokens {
			if tok.Dep != DepRoot || strings.ToLower(tok.Text) != cue {
				continue
			}
			subj, ok := firstChild(sent.Tokens, i, true, DepNsubj, DepNsubjPass)
			if !ok {
				continue
			}
			fragment := spanText(sent.Tokens[i+1:])
			if fragment == "" {
				continue
			}
			triples = append(triples, Triple{Subject: subj.Text, Predicate: tok.Text, Object: fragment})
		}
	}
	return triples
}

func firstChild(tokens []Token, head int, left bool, deps ...string) (Token, bool) {
	for j, t := range tokens {
		if j == head || t.Head != head || (j < head) != left {
			continue
		}
		for _, d := range deps {
			if t.Dep == d {
				return t, true
			}
		}
	}
	return Token{}, false
}

func spanText(tokens []Token) string {
	end := len(tokens)
	for end > 0 && isPunctuation(tokens[end-1].Text) {
		end--
	}
	words := make([]string, 0, end)
	for _, t := range tokens[:end] {
		words = append(words, t.Text)
	}
	return strings.Join(words, " ")
}
