package models

import (
	"time"

	"github.com/tutor-agent/backend/internal/analysis"
)

// Interaction is one answered question as recorded in the history.
type Interaction struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	Question        string            `json:"question"`
	KeyPhrases      []string          `json:"key_phrases"`
	Triples         []analysis.Triple `json:"triples"`
	TopicType       string            `json:"topic_type"`
	SimilarQuestion string            `json:"similar_question,omitempty"`
	Engagement      float64           `json:"engagement"`
	Response        string            `json:"response"`
	DiagramRef      string            `json:"diagram_ref,omitempty"`
	LatencyMS       int64             `json:"latency_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}

type Feedback struct {
	ID            int       `json:"id"`
	InteractionID string    `json:"interaction_id"`
	Helpful       bool      `json:"helpful"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}
