package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
)

// AutoMigrateAll creates/updates the core tables plus the partial unique
// index that is the authoritative single-flight invariant: at most one
// pipeline_run row may hold status 'running' at any instant.
func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrate(s.db)
}

func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&types.Document{},
		&types.DocumentChunk{},
		&types.Run{},
		&types.NodeRun{},
		&types.Entity{},
		&types.Fact{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := gdb.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_pipeline_run_running
		 ON pipeline_run ((status))
		 WHERE status = 'running';`,
	).Error; err != nil {
		return fmt.Errorf("create running-uniqueness index: %w", err)
	}
	return nil
}
