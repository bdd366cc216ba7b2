package analysis

import "context"

type TopicType string

const (
	TopicProcess TopicType = "process"
	TopicTheory  TopicType = "theory"
)

// Triple is a subject-predicate-object relation read off one clause.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

type Result struct {
	KeyPhrases []string  `json:"key_phrases"`
	Triples    []Triple  `json:"triples"`
	TopicType  TopicType `json:"topic_type"`
}

// Dependency labels produced by analyzers and consumed by relation extractors.
const (
	DepRoot      = "ROOT"
	DepNsubj     = "nsubj"
	DepNsubjPass = "nsubjpass"
	DepDobj      = "dobj"
	DepAttr      = "attr"
	DepAux       = "aux"
	DepAuxPass   = "auxpass"
	DepOther     = "dep"
)

// Token is one word of a parsed sentence. Head is the index of the governing
// token within the same sentence, or -1 for the root.
type Token struct {
	Text  string
	Lemma string
	Tag   string
	Dep   string
	Head  int
}

type Sentence struct {
	Tokens []Token
}

type Parse struct {
	Sentences []Sentence
}

// Analyzer is the language-analysis collaborator. Text it cannot handle yields
// an error, never a panic.
type Analyzer interface {
	Parse(ctx context.Context, text string) (*Parse, error)
}

// PhraseRanker returns at most limit key phrases, best first.
type PhraseRanker interface {
	Name() string
	Rank(text string, parse *Parse, limit int) []string
}

// RelationExtractor reads triples off a parse in sentence order.
type RelationExtractor interface {
	Name() string
	Extract(parse *Parse) []Triple
}
