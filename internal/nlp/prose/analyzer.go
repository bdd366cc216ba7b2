package prose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/pkg/logger"
)

var ErrUnsupportedText = errors.New("unsupported text")

// Analyzer segments and tags text with prose and derives a shallow dependency
// layer (root, subject, object) from the part-of-speech sequence. prose has
// no dependency parser, so the labels cover only what relation extraction
// reads.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Parse(ctx context.Context, text string) (parse *analysis.Parse, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, ErrUnsupportedText
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("prose panicked while parsing", zap.Any("panic", r))
			parse, err = nil, fmt.Errorf("%w: %v", ErrUnsupportedText, r)
		}
	}()

	seg, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to segment text: %w", err)
	}

	parse = &analysis.Parse{}
	for _, sent := range seg.Sentences() {
		if strings.TrimSpace(sent.Text) == "" {
			continue
		}
		doc, err := prose.NewDocument(sent.Text,
			prose.WithSegmentation(false),
			prose.WithExtraction(false),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to tag sentence: %w", err)
		}

		words := make([]taggedWord, 0, len(doc.Tokens()))
		for _, tok := range doc.Tokens() {
			words = append(words, taggedWord{text: tok.Text, tag: tok.Tag})
		}
		if len(words) > 0 {
			parse.Sentences = append(parse.Sentences, labelSentence(words))
		}
	}

	logger.Debug("Text parsed", zap.Int("sentences", len(parse.Sentences)))
	return parse, nil
}
