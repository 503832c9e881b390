package repository

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type schemaMigrationModel struct {
	Version   int       `gorm:"primaryKey;column:version"`
	Name      string    `gorm:"column:name;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (schemaMigrationModel) TableName() string { return "schema_migrations" }

type migration struct {
	Version int
	Name    string
	Run     func(tx *gorm.DB) error
}

// migrations is the linear, append-only migration history. New entries go
// at the end with the next version number.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial schema",
		Run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&chatModel{},
				&botInstanceModel{},
				&assignmentModel{},
				&processedMessageModel{},
				&scheduleModel{},
				&userModel{},
			)
		},
	},
}

// Migrate applies all pending migrations to head, recording each in
// schema_migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaMigrationModel{}); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	var applied []schemaMigrationModel
	if err := db.Find(&applied).Error; err != nil {
		return err
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		logrus.Infof("[MIGRATE] Applying migration %d: %s", m.Version, m.Name)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Run(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigrationModel{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
	}
	return nil
}
