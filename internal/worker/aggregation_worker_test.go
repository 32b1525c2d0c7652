package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewAggregationTask(t *testing.T) {
	payload := &AggregationPayload{
		IterationID: uuid.New(),
	}

	task, err := NewAggregationTask(payload)
	require.NoError(t, err)
	assert.NotNil(t, task)
	assert.Equal(t, TypeAggregation, task.Type())

	var decoded AggregationPayload
	err = json.Unmarshal(task.Payload(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, payload.IterationID, decoded.IterationID)
}

func TestNewBatchAggregationTask(t *testing.T) {
	payload := &BatchAggregationPayload{
		IterationIDs: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	}

	task, err := NewBatchAggregationTask(payload)
	require.NoError(t, err)
	assert.NotNil(t, task)
	assert.Equal(t, TypeBatchAggregation, task.Type())

	var decoded BatchAggregationPayload
	err = json.Unmarshal(task.Payload(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, payload.IterationIDs, decoded.IterationIDs)
}

func TestAggregationWorker_ProcessTask_InvalidPayload(t *testing.T) {
	worker := NewAggregationWorker(zap.NewNop(), nil)

	task := asynq.NewTask(TypeAggregation, []byte("invalid json"))

	err := worker.ProcessTask(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestAggregationWorker_ProcessBatchTask_InvalidPayload(t *testing.T) {
	worker := NewAggregationWorker(zap.NewNop(), nil)

	task := asynq.NewTask(TypeBatchAggregation, []byte("invalid json"))

	err := worker.ProcessBatchTask(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestTaskTypes(t *testing.T) {
	types := []string{
		TypeAggregation,
		TypeBatchAggregation,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.False(t, seen[typ], "Duplicate task type: %s", typ)
		seen[typ] = true
	}
}
