package zilliz

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/pkg/logger"
)

// MaxRestore caps how many records one session rehydrates. Milvus returns
// an unordered subset once a session holds more, so rehydration of such a
// session keeps MaxRestore records chosen by the server, sorted by seq.
const MaxRestore = 10000

// MaxUtteranceBytes bounds the utterance column. It holds 2000 runes of
// any script.
const MaxUtteranceBytes = 8192

const (
	fieldID        = "record_id"
	fieldSession   = "session_id"
	fieldSeq       = "seq"
	fieldUtterance = "utterance"
	fieldEmbedding = "embedding"
)

// Client archives session memory records in Milvus so that a restarted
// process can rebuild each session's memory in insertion order.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Int("dim", vectorDim),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		if err := z.client.CreateCollection(ctx, z.schema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexFlat(entity.COSINE)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := z.client.CreateIndex(ctx, z.collectionName, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		logger.Info("Collection created", zap.String("collection", z.collectionName))
	}

	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (z *Client) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Tutor session memory",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldSession,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:     fieldSeq,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       fieldUtterance,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(MaxUtteranceBytes)},
			},
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(z.vectorDim)},
			},
		},
	}
}

// Append archives one record. Sequence numbers come from the wall clock, so
// records of a single session restore in the order they were archived.
func (z *Client) Append(ctx context.Context, sessionID string, record memory.Record) error {
	if err := checkRecord(record, z.vectorDim); err != nil {
		return err
	}

	_, err := z.client.Insert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar(fieldID, []string{uuid.NewString()}),
		entity.NewColumnVarChar(fieldSession, []string{sessionID}),
		entity.NewColumnInt64(fieldSeq, []int64{time.Now().UnixNano()}),
		entity.NewColumnVarChar(fieldUtterance, []string{record.Utterance}),
		entity.NewColumnFloatVector(fieldEmbedding, z.vectorDim, [][]float32{record.Embedding}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory record: %w", err)
	}

	logger.Debug("Memory record archived", zap.String("session_id", sessionID))
	return nil
}

// Load implements session.Archive.
func (z *Client) Load(ctx context.Context, sessionID string) ([]memory.Record, error) {
	rs, err := z.client.Query(
		ctx,
		z.collectionName,
		nil,
		fmt.Sprintf("%s == %s", fieldSession, strconv.Quote(sessionID)),
		[]string{fieldSeq, fieldUtterance, fieldEmbedding},
		client.WithLimit(MaxRestore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}

	var (
		seqs       []int64
		utterances []string
		embeddings [][]float32
	)
	for _, col := range rs {
		switch c := col.(type) {
		case *entity.ColumnInt64:
			if c.Name() == fieldSeq {
				seqs = c.Data()
			}
		case *entity.ColumnVarChar:
			if c.Name() == fieldUtterance {
				utterances = c.Data()
			}
		case *entity.ColumnFloatVector:
			if c.Name() == fieldEmbedding {
				embeddings = c.Data()
			}
		}
	}

	records, err := assemble(seqs, utterances, embeddings)
	if err != nil {
		return nil, err
	}

	logger.Debug("Memory records loaded", zap.String("session_id", sessionID), zap.Int("count", len(records)))
	return records, nil
}

func checkRecord(record memory.Record, dim int) error {
	if len(record.Embedding) != dim {
		return fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(record.Embedding), dim)
	}
	if len(record.Utterance) > MaxUtteranceBytes {
		return fmt.Errorf("utterance of %d bytes exceeds archive limit of %d", len(record.Utterance), MaxUtteranceBytes)
	}
	return nil
}

// assemble zips the query columns and orders the rows by sequence number.
func assemble(seqs []int64, utterances []string, embeddings [][]float32) ([]memory.Record, error) {
	if len(seqs) != len(utterances) || len(seqs) != len(embeddings) {
		return nil, fmt.Errorf("inconsistent query result: %d seqs, %d utterances, %d embeddings",
			len(seqs), len(utterances), len(embeddings))
	}

	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return seqs[order[a]] < seqs[order[b]] })

	records := make([]memory.Record, len(order))
	for i, j := range order {
		records[i] = memory.Record{Utterance: utterances[j], Embedding: embeddings[j]}
	}
	return records, nil
}
