package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CorpusQueued    string = "QUEUED"
	CorpusRunning   string = "RUNNING"
	CorpusCompleted string = "COMPLETED"
	CorpusFailed    string = "FAILED"
)

type Corpus struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name    string `gorm:"not null"`
	Dataset string `gorm:"size:50;not null"`

	NumSteps int `gorm:"not null"`
	MinFreq  int `gorm:"not null"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	TrainCount int `gorm:"default:0"`
	TestCount  int `gorm:"default:0"`
	VocabSize  int `gorm:"default:0"`

	Vocab  *CorpusVocab  `gorm:"foreignKey:CorpusId;constraint:OnDelete:CASCADE"`
	Errors []CorpusError `gorm:"foreignKey:CorpusId;constraint:OnDelete:CASCADE"`
}

// CorpusVocab stores the index to token list of a prepared corpus.
type CorpusVocab struct {
	CorpusId uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Tokens   datatypes.JSON `gorm:"type:jsonb;not null"` // ["<unk>","<pad>",…]
}

type CorpusError struct {
	CorpusId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

type BenchmarkRun struct {
	Id       uuid.UUID     `gorm:"type:uuid;primaryKey"`
	CorpusId uuid.NullUUID `gorm:"type:uuid;index"`

	Description string `gorm:"not null"`
	ElapsedNs   int64  `gorm:"not null"`
	Workers     int    `gorm:"default:1"`
	Timestamp   time.Time
}

func (r BenchmarkRun) Elapsed() time.Duration {
	return time.Duration(r.ElapsedNs)
}
