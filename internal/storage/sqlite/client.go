package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/logger"
)

const DefaultHistoryLimit = 20

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		key_phrases TEXT NOT NULL,
		triples TEXT NOT NULL,
		topic_type TEXT NOT NULL,
		similar_question TEXT,
		engagement REAL NOT NULL,
		response TEXT NOT NULL,
		diagram_ref TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interaction_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (interaction_id) REFERENCES interactions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_interaction ON feedback(interaction_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertInteraction(ctx context.Context, rec *models.Interaction) error {
	phrases, err := json.Marshal(rec.KeyPhrases)
	if err != nil {
		return fmt.Errorf("failed to marshal key phrases: %w", err)
	}
	triples, err := json.Marshal(rec.Triples)
	if err != nil {
		return fmt.Errorf("failed to marshal triples: %w", err)
	}

	query := `
		INSERT INTO interactions (id, session_id, question, key_phrases, triples, topic_type,
			similar_question, engagement, response, diagram_ref, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Question,
		string(phrases),
		string(triples),
		rec.TopicType,
		rec.SimilarQuestion,
		rec.Engagement,
		rec.Response,
		rec.DiagramRef,
		rec.LatencyMS,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	logger.Debug("Interaction recorded",
		zap.String("interaction_id", rec.ID),
		zap.String("session_id", rec.SessionID),
	)
	return nil
}

// GetHistory lists a session's interactions, latest first.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, session_id, question, key_phrases, triples, topic_type,
			similar_question, engagement, response, diagram_ref, latency_ms, created_at
		FROM interactions
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := make([]models.Interaction, 0)
	for rows.Next() {
		var (
			r                  models.Interaction
			phrases, triples   string
			similar, diagram   sql.NullString
			latency, createdAt int64
		)

		err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &phrases, &triples, &r.TopicType,
			&similar, &r.Engagement, &r.Response, &diagram, &latency, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(phrases), &r.KeyPhrases); err != nil {
			return nil, fmt.Errorf("failed to decode key phrases: %w", err)
		}
		if err := json.Unmarshal([]byte(triples), &r.Triples); err != nil {
			return nil, fmt.Errorf("failed to decode triples: %w", err)
		}

		r.SimilarQuestion = similar.String
		r.DiagramRef = diagram.String
		r.LatencyMS = latency
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return records, nil
}

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `INSERT INTO feedback (interaction_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		feedback.InteractionID,
		helpful,
		feedback.Comment,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("interaction_id", feedback.InteractionID),
		zap.Bool("helpful", feedback.Helpful),
	)
	return nil
}
