package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	queue := NewInMemoryQueue()

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, queue.PublishPrepareCorpusTask(context.Background(), PrepareCorpusPayload{CorpusId: id}))
	}
	queue.Close()
	queue.Close()

	var got []uuid.UUID
	for task := range queue.Tasks() {
		assert.Equal(t, PrepareCorpusQueue, task.Type())

		var payload PrepareCorpusPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		got = append(got, payload.CorpusId)

		assert.NoError(t, task.Ack())
	}
	assert.Equal(t, ids, got)
}

func TestInMemoryQueuePublishRespectsContext(t *testing.T) {
	queue := NewInMemoryQueue()
	for range cap(queue.tasks) {
		require.NoError(t, queue.PublishPrepareCorpusTask(context.Background(), PrepareCorpusPayload{}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := queue.PublishPrepareCorpusTask(ctx, PrepareCorpusPayload{})
	assert.ErrorIs(t, err, context.Canceled)
}
