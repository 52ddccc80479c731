package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	PrepareCorpusQueue = "prepare_corpus_queue"
	RetryDelay         = 5 * time.Second
	MaxConnectRetry    = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type PrepareCorpusPayload struct {
	CorpusId uuid.UUID
}

type Publisher interface {
	PublishPrepareCorpusTask(ctx context.Context, payload PrepareCorpusPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
