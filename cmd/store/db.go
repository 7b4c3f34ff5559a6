package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arcwatch/attribution-hub/internal/data/model"
	"github.com/arcwatch/attribution-hub/internal/sql"
)

// DatabaseInitializer opens a database connection from the given config.
type DatabaseInitializer interface {
	Initialize(config *sql.DatabaseConfig) (*gorm.DB, error)
}

type sqliteDatabaseInitializer struct{}

func (d *sqliteDatabaseInitializer) Initialize(config *sql.DatabaseConfig) (*gorm.DB, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(config.Path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}

	database, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return database, nil
}

type connectorDatabaseInitializer struct{}

func (d *connectorDatabaseInitializer) Initialize(config *sql.DatabaseConfig) (*gorm.DB, error) {
	dbConn, err := sql.CreateDBConnector(*config).Connect(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return dbConn, nil
}

type defaultDatabaseInitializer struct{}

func (d *defaultDatabaseInitializer) Initialize(config *sql.DatabaseConfig) (*gorm.DB, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Driver == "sqlite" {
		return (&sqliteDatabaseInitializer{}).Initialize(config)
	}
	return (&connectorDatabaseInitializer{}).Initialize(config)
}

// gormMigrator is the part of *gorm.DB the migrator needs.
type gormMigrator interface {
	AutoMigrate(models ...interface{}) error
}

// DatabaseMigrator applies schema migrations to an open connection.
type DatabaseMigrator interface {
	Migrate(dbConn gormMigrator) error
}

type autoMigratingMigrator struct{}

func (d *autoMigratingMigrator) Migrate(dbConn gormMigrator) error {
	err := dbConn.AutoMigrate(&model.AttributionRun{}, &model.RepositorySummary{}, &model.ArtifactRecord{})
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	return nil
}

type migratingDatabaseInitializer struct {
	initializer DatabaseInitializer
	migrator    DatabaseMigrator
}

var DefaultDatabaseInitializer DatabaseInitializer = &migratingDatabaseInitializer{
	initializer: &defaultDatabaseInitializer{},
	migrator:    &autoMigratingMigrator{},
}

func (d *migratingDatabaseInitializer) Initialize(config *sql.DatabaseConfig) (*gorm.DB, error) {
	dbConn, err := d.initializer.Initialize(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	if err := d.migrator.Migrate(dbConn); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return dbConn, nil
}
