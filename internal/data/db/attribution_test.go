package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arcwatch/attribution-hub/internal/data/model"
)

func TestInsertRun(t *testing.T) {
	type args struct {
		db  *gorm.DB
		run *model.AttributionRun
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "successful insertion",
			args: args{
				db:  setupSQLiteDB(t),
				run: testRun("run-insert"),
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.args.db.AutoMigrate(&model.AttributionRun{}, &model.RepositorySummary{}, &model.ArtifactRecord{})
			if err != nil {
				t.Fatalf("failed to auto-migrate models: %v", err)
			}
			manager, err := NewGormAttributionManager(tt.args.db)
			if err != nil {
				t.Fatalf("failed to create attribution manager: %v", err)
			}
			if err := manager.InsertRun(context.Background(), tt.args.run); (err != nil) != tt.wantErr {
				t.Errorf("InsertRun() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.args.run.ID == 0 {
				t.Errorf("InsertRun() did not assign an ID")
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	db := setupSQLiteDB(t)
	if err := db.AutoMigrate(&model.AttributionRun{}, &model.RepositorySummary{}, &model.ArtifactRecord{}); err != nil {
		t.Fatalf("failed to auto-migrate models: %v", err)
	}
	manager, err := NewGormAttributionManager(db)
	if err != nil {
		t.Fatalf("failed to create attribution manager: %v", err)
	}
	run := testRun("run-get")
	if err := manager.InsertRun(context.Background(), run); err != nil {
		t.Fatalf("InsertRun() error = %v", err)
	}

	got, err := manager.GetRun(context.Background(), "run-get")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Product != "falcon" {
		t.Errorf("GetRun() product = %q, want %q", got.Product, "falcon")
	}
	if len(got.Summaries) != 1 {
		t.Fatalf("GetRun() summaries = %d, want 1", len(got.Summaries))
	}
	summary := got.Summaries[0]
	if summary.Name != "alerting" {
		t.Errorf("GetRun() summary name = %q, want %q", summary.Name, "alerting")
	}
	if len(summary.Artifacts) != 1 {
		t.Fatalf("GetRun() artifacts = %d, want 1", len(summary.Artifacts))
	}
	if summary.Artifacts[0].Key != "falcon-docker-local/alert-service/1.2.3" {
		t.Errorf("GetRun() artifact key = %q", summary.Artifacts[0].Key)
	}

	if _, err := manager.GetRun(context.Background(), "no-such-run"); err == nil {
		t.Errorf("GetRun() expected error for missing run")
	}
}

func TestUpdateRun(t *testing.T) {
	db := setupSQLiteDB(t)
	if err := db.AutoMigrate(&model.AttributionRun{}, &model.RepositorySummary{}, &model.ArtifactRecord{}); err != nil {
		t.Fatalf("failed to auto-migrate models: %v", err)
	}
	manager, err := NewGormAttributionManager(db)
	if err != nil {
		t.Fatalf("failed to create attribution manager: %v", err)
	}
	run := testRun("run-update")
	if err := manager.InsertRun(context.Background(), run); err != nil {
		t.Fatalf("InsertRun() error = %v", err)
	}

	updated := testRun("run-update")
	updated.Project = "falcon-staging"
	updated.Summaries = []model.RepositorySummary{
		{
			Name:        "ingest",
			PublishType: "multi",
			Builds:      model.JSONStringArray{"ingest-api", "ingest-worker"},
			High:        4,
		},
	}
	if err := manager.UpdateRun(context.Background(), updated); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	got, err := manager.GetRun(context.Background(), "run-update")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Project != "falcon-staging" {
		t.Errorf("UpdateRun() project = %q, want %q", got.Project, "falcon-staging")
	}
	if len(got.Summaries) != 1 {
		t.Fatalf("UpdateRun() summaries = %d, want 1", len(got.Summaries))
	}
	if got.Summaries[0].Name != "ingest" {
		t.Errorf("UpdateRun() summary name = %q, want %q", got.Summaries[0].Name, "ingest")
	}

	var orphaned int64
	if err := db.Model(&model.ArtifactRecord{}).Count(&orphaned).Error; err != nil {
		t.Fatalf("failed to count artifacts: %v", err)
	}
	if orphaned != 0 {
		t.Errorf("UpdateRun() left %d stale artifact records", orphaned)
	}

	missing := testRun("run-missing")
	if err := manager.UpdateRun(context.Background(), missing); err == nil {
		t.Errorf("UpdateRun() expected error for missing run")
	}
}

func TestNewGormAttributionManagerNilDB(t *testing.T) {
	if _, err := NewGormAttributionManager(nil); err == nil {
		t.Errorf("NewGormAttributionManager() expected error for nil db")
	}
}

func TestInsertRunNilRun(t *testing.T) {
	manager, err := NewGormAttributionManager(setupSQLiteDB(t))
	if err != nil {
		t.Fatalf("failed to create attribution manager: %v", err)
	}
	if err := manager.InsertRun(context.Background(), nil); err == nil {
		t.Errorf("InsertRun() expected error for nil run")
	}
}

func testRun(runID string) *model.AttributionRun {
	return &model.AttributionRun{
		RunID:           runID,
		Product:         "falcon",
		Project:         "falcon-prod",
		RepositoryCount: 2,
		BuildCount:      3,
		MatchedCount:    2,
		UnmappedCount:   1,
		Summaries: []model.RepositorySummary{
			{
				Name:        "alerting",
				PublishType: "mono",
				Builds:      model.JSONStringArray{"alert-service"},
				Critical:    2,
				High:        3,
				Low:         1,
				Artifacts: []model.ArtifactRecord{
					{
						Key:            "falcon-docker-local/alert-service/1.2.3",
						BuildName:      "alert-service",
						BuildNumber:    "41",
						BuildTimestamp: "1700000000000",
						Critical:       2,
						High:           3,
						Low:            1,
						IsLatest:       true,
					},
				},
			},
		},
	}
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Using a unique identifier for each database instance to ensure it's unique
	uniqueDBIdentifier := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(uniqueDBIdentifier), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db
}
