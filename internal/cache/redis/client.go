package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
)

// Client holds cached embeddings and the latest affect label per session.
// The capture sidecar publishes labels; the pipeline reads them as its
// engagement sensor.
type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, embeddingKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("key", key))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	logger.Debug("Embedding cache hit", zap.String("key", key))
	return embedding, true, nil
}

// SetAffect records the latest emotion label for a session. The label
// expires after ttl so a disconnected camera stops influencing responses.
func (c *Client) SetAffect(ctx context.Context, sessionID, label string, ttl time.Duration) error {
	label = strings.ToLower(strings.TrimSpace(label))
	if err := c.client.Set(ctx, affectKey(sessionID), label, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set affect label: %w", err)
	}
	logger.Debug("Affect label stored", zap.String("session_id", sessionID), zap.String("label", label))
	return nil
}

// Sense implements engagement.Sensor. A missing or expired label means no
// face was seen and is not an error.
func (c *Client) Sense(ctx context.Context, sessionID string) (string, error) {
	label, err := c.client.Get(ctx, affectKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get affect label: %w", err)
	}
	return label, nil
}

func embeddingKey(key string) string {
	return "embedding:" + key
}

func affectKey(sessionID string) string {
	return "affect:" + sessionID
}
