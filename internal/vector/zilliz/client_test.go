package zilliz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/memory"
)

func TestAssemble_OrdersBySeq(t *testing.T) {
	records, err := assemble(
		[]int64{30, 10, 20},
		[]string{"C", "A", "B"},
		[][]float32{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	)
	require.NoError(t, err)

	assert.Equal(t, []memory.Record{
		{Utterance: "A", Embedding: []float32{1, 0, 0}},
		{Utterance: "B", Embedding: []float32{0, 1, 0}},
		{Utterance: "C", Embedding: []float32{0, 0, 1}},
	}, records)
}

func TestAssemble_Empty(t *testing.T) {
	records, err := assemble(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAssemble_InconsistentColumns(t *testing.T) {
	_, err := assemble([]int64{1}, []string{"A", "B"}, [][]float32{{1}})
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	z := &Client{collectionName: "tutor_memory", vectorDim: 300}
	s := z.schema()

	assert.Equal(t, "tutor_memory", s.CollectionName)
	require.Len(t, s.Fields, 5)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, "300", s.Fields[4].TypeParams["dim"])
	assert.Equal(t, "8192", s.Fields[3].TypeParams["max_length"])
}

func TestCheckRecord(t *testing.T) {
	// 2000 four-byte runes, the longest question the API accepts.
	longest := strings.Repeat("\U0001F600", 2000)

	tests := []struct {
		name    string
		record  memory.Record
		wantErr bool
	}{
		{"fits", memory.Record{Utterance: "What is osmosis?", Embedding: []float32{1, 0, 0}}, false},
		{"longest question", memory.Record{Utterance: longest, Embedding: []float32{1, 0, 0}}, false},
		{"oversized utterance", memory.Record{Utterance: strings.Repeat("a", MaxUtteranceBytes+1), Embedding: []float32{1, 0, 0}}, true},
		{"wrong dimension", memory.Record{Utterance: "q", Embedding: []float32{1, 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRecord(tt.record, 3)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckRecord_DimensionIsContractViolation(t *testing.T) {
	err := checkRecord(memory.Record{Utterance: "q", Embedding: []float32{1}}, 3)
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
}
