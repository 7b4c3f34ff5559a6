package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"github.com/arcwatch/attribution-hub/internal/data/model"
	"github.com/arcwatch/attribution-hub/internal/sql"
)

// connectorFactory builds a DBConnector for the given config.
type connectorFactory func(config sql.DatabaseConfig) sql.DBConnector

// databaseMigrator applies the schema to an open connection.
type databaseMigrator func(db *gorm.DB) error

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getConfig() sql.DatabaseConfig {
	return sql.DatabaseConfig{
		Driver:                 getEnv("DB_DRIVER", "sqlite"),
		Path:                   getEnv("DB_PATH", "data/attribution.db"),
		Host:                   getEnv("DB_HOST", "localhost"),
		Port:                   getEnv("DB_PORT", "5432"),
		User:                   getEnv("DB_USER", "test_user"),
		Password:               getEnv("DB_PASSWORD", "test_password"),
		DBName:                 getEnv("DB_NAME", "test_db"),
		InstanceConnectionName: getEnv("DB_INSTANCE_CONNECTION_NAME", ""),
	}
}

func run(ctx context.Context, config *sql.DatabaseConfig, newConnector connectorFactory, migrate databaseMigrator) error {
	dbConn, err := newConnector(*config).Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(dbConn); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

func migrateDatabase(db *gorm.DB) error {
	err := db.AutoMigrate(&model.AttributionRun{}, &model.RepositorySummary{}, &model.ArtifactRecord{})
	if err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

func main() {
	ctx := context.Background()
	config := getConfig()
	if err := run(ctx, &config, sql.CreateDBConnector, migrateDatabase); err != nil {
		log.Fatalf("failed to initialize tables: %v", err)
	}
}
