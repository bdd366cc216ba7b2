package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const DefaultMaxPhrases = 5

var ErrAnalysisDegraded = errors.New("analysis degraded")

type Extractor struct {
	analyzer   Analyzer
	phrases    PhraseRanker
	relations  RelationExtractor
	maxPhrases int
}

func NewExtractor(analyzer Analyzer, phrases PhraseRanker, relations RelationExtractor, maxPhrases int) *Extractor {
	if phrases == nil {
		phrases = NewRake()
	}
	if relations == nil {
		relations = DependencyRelations{}
	}
	if maxPhrases <= 0 {
		maxPhrases = DefaultMaxPhrases
	}
	return &Extractor{
		analyzer:   analyzer,
		phrases:    phrases,
		relations:  relations,
		maxPhrases: maxPhrases,
	}
}

// Analyze never fails hard. When the analyzer rejects the text the returned
// Result carries empty phrases and triples and the error wraps
// ErrAnalysisDegraded so the caller can log it.
func (e *Extractor) Analyze(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	result := Result{
		KeyPhrases: []string{},
		Triples:    []Triple{},
		TopicType:  ClassifyTopic(text),
	}
	if text == "" {
		return result, nil
	}
	if !utf8.ValidString(text) {
		return result, fmt.Errorf("%w: invalid utf-8 input", ErrAnalysisDegraded)
	}

	parse, err := e.analyzer.Parse(ctx, text)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrAnalysisDegraded, err)
	}
	if parse == nil {
		parse = &Parse{}
	}

	if phrases := e.phrases.Rank(text, parse, e.maxPhrases); len(phrases) > 0 {
		result.KeyPhrases = phrases
	}
	if triples := e.relations.Extract(parse); len(triples) > 0 {
		result.Triples = triples
	}
	return result, nil
}

// ClassifyTopic is a lexical cue check: any occurrence of "how", even inside
// another word such as "show", marks the question as a process question.
func ClassifyTopic(text string) TopicType {
	if strings.Contains(strings.ToLower(text), "how") {
		return TopicProcess
	}
	return TopicTheory
}

func PhraseRankerByName(name string) (PhraseRanker, error) {
	switch name {
	case "", "rake":
		return NewRake(), nil
	case "nounchunk":
		return NounChunks{}, nil
	default:
		return nil, fmt.Errorf("unknown phrase ranker %q", name)
	}
}

func RelationExtractorByName(name string) (RelationExtractor, error) {
	switch name {
	case "", "dependency":
		return DependencyRelations{}, nil
	case "copula":
		return CopulaRelations{Cue: "is"}, nil
	default:
		return nil, fmt.Errorf("unknown relation extractor %q", name)
	}
}
