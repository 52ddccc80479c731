package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
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

type CorpusVocab struct {
	CorpusId uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Tokens   datatypes.JSON `gorm:"type:jsonb;not null"`
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
	Timestamp   time.Time
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&Corpus{}, &CorpusVocab{}, &CorpusError{}, &BenchmarkRun{})
}
