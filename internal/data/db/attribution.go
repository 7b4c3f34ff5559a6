package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arcwatch/attribution-hub/internal/data/model"
	"github.com/arcwatch/attribution-hub/internal/log"
)

// AttributionManager defines the interface for managing attribution runs in
// the database.
type AttributionManager interface {
	// InsertRun inserts a run with its repository summaries and artifacts.
	InsertRun(ctx context.Context, run *model.AttributionRun) error
	// UpdateRun replaces an existing run's summaries and counters.
	UpdateRun(ctx context.Context, run *model.AttributionRun) error
	// GetRun retrieves a run and its full summary graph by run id.
	GetRun(ctx context.Context, runID string) (*model.AttributionRun, error)
}

// GormAttributionManager implements the AttributionManager interface using a
// GORM DB connection.
type GormAttributionManager struct {
	db *gorm.DB
}

// NewGormAttributionManager creates a new GormAttributionManager.
func NewGormAttributionManager(db *gorm.DB) (*GormAttributionManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &GormAttributionManager{db: db}, nil
}

// InsertRun inserts a run and its associated summaries into the database.
func (manager *GormAttributionManager) InsertRun(ctx context.Context, run *model.AttributionRun) error {
	if ctx == nil {
		return fmt.Errorf("ctx cannot be nil")
	}
	if manager.db == nil {
		return fmt.Errorf("db cannot be nil")
	}
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	logger := log.NewLogger(ctx)
	logger.Debug("InsertRun", zap.String("run_id", run.RunID))

	// Use a transaction to ensure atomicity
	err := manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("error inserting run: %w", err)
		}
		if run.ID == 0 {
			return fmt.Errorf("error inserting run the ID is 0")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run, replacing its summaries and artifacts.
func (manager *GormAttributionManager) UpdateRun(ctx context.Context, run *model.AttributionRun) error {
	if ctx == nil {
		return fmt.Errorf("ctx cannot be nil")
	}
	if manager.db == nil {
		return fmt.Errorf("db cannot be nil")
	}
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	logger := log.NewLogger(ctx)
	logger.Debug("UpdateRun", zap.String("run_id", run.RunID))

	var existing model.AttributionRun
	if err := manager.db.First(&existing, "run_id = ?", run.RunID).Error; err != nil {
		return fmt.Errorf("error finding run: %w", err)
	}

	// Use a transaction to ensure atomicity
	err := manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Delete existing summaries and their artifacts
		var summaries []model.RepositorySummary
		if err := tx.Where("attribution_run_id = ?", existing.ID).Find(&summaries).Error; err != nil {
			return fmt.Errorf("error finding existing summaries: %w", err)
		}
		for i := range summaries {
			summary := &summaries[i]
			if err := tx.Where("repository_summary_id = ?", summary.ID).Delete(&model.ArtifactRecord{}).Error; err != nil {
				return fmt.Errorf("error deleting existing artifacts: %w", err)
			}
			if err := tx.Delete(summary).Error; err != nil {
				return fmt.Errorf("error deleting existing summary: %w", err)
			}
		}

		// Update run fields and attach the new summaries
		existing.Product = run.Product
		existing.Project = run.Project
		existing.RepositoryCount = run.RepositoryCount
		existing.BuildCount = run.BuildCount
		existing.MatchedCount = run.MatchedCount
		existing.UnmappedCount = run.UnmappedCount
		existing.DroppedCount = run.DroppedCount
		existing.Summaries = run.Summaries
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("error updating run: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// GetRun retrieves a run and its associated summaries from the database.
func (manager *GormAttributionManager) GetRun(ctx context.Context, runID string) (*model.AttributionRun, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx cannot be nil")
	}
	if manager.db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	logger := log.NewLogger(ctx)
	logger.Debug("GetRun", zap.String("run_id", runID))

	var run model.AttributionRun
	if err := manager.db.Preload("Summaries.Artifacts").First(&run, "run_id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("error retrieving run: %w", err)
	}

	return &run, nil
}
