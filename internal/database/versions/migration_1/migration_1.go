package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type BenchmarkRun struct {
	Workers int `gorm:"default:1"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&BenchmarkRun{}, "workers"); err != nil {
		return fmt.Errorf("error adding workers column: %w", err)
	}

	if err := db.Model(&BenchmarkRun{}).
		Where("workers IS NULL").
		Update("workers", 1).Error; err != nil {
		return fmt.Errorf("error setting default value for workers: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&BenchmarkRun{}, "workers"); err != nil {
		return fmt.Errorf("error dropping workers column: %w", err)
	}

	return nil
}
