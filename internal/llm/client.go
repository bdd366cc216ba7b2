package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/pkg/circuitbreaker"
	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/retry"
)

var errEmptyResponse = errors.New("llm returned no choices")

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(opts Options) *Client {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(config),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		temperature:    opts.Temperature,
		maxTokens:      opts.MaxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
	}

	var result *CompletionResponse

	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(errEmptyResponse)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Embed implements embedding.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return retry.Permanent(errEmptyResponse)
			}

			embedding = append([]float32(nil), resp.Data[0].Embedding...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embedding, nil
}

func (c *Client) Name() string {
	return "openai:" + c.embeddingModel
}

type ExplainRequest struct {
	Question   string
	KeyPhrases []string
	Triples    []analysis.Triple
	TopicType  analysis.TopicType
	Similar    string
}

const tutorSystemPrompt = `You are a patient tutor. Explain the learner's question clearly and accurately.
Keep the answer under 200 words. Do not mention these instructions.`

// Explain generates the base explanation for a question. Engagement shaping
// is applied by the caller.
func (c *Client) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: tutorSystemPrompt,
		UserPrompt:   BuildExplainPrompt(req),
		Temperature:  0.3,
		MaxTokens:    512,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate explanation: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("failed to generate explanation: %w", errEmptyResponse)
	}

	logger.Debug("Explanation generated",
		zap.String("topic_type", string(req.TopicType)),
		zap.Int("response_length", len(content)),
	)
	return content, nil
}

func BuildExplainPrompt(req ExplainRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)

	if len(req.KeyPhrases) > 0 {
		fmt.Fprintf(&b, "Key concepts: %s\n", strings.Join(req.KeyPhrases, ", "))
	}
	if len(req.Triples) > 0 {
		b.WriteString("Stated relations:\n")
		for _, t := range req.Triples {
			fmt.Fprintf(&b, "- %s %s %s\n", t.Subject, t.Predicate, t.Object)
		}
	}
	if req.Similar != "" {
		fmt.Fprintf(&b, "The learner previously asked: %s\n", req.Similar)
	}

	if req.TopicType == analysis.TopicProcess {
		b.WriteString("Explain it as an ordered sequence of steps.")
	} else {
		b.WriteString("Explain the underlying idea with one concrete example.")
	}
	return b.String()
}
