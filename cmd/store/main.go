package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/internal/data/db"
	"github.com/arcwatch/attribution-hub/internal/data/model"
	"github.com/arcwatch/attribution-hub/internal/external"
	"github.com/arcwatch/attribution-hub/internal/log"
	"github.com/arcwatch/attribution-hub/internal/sql"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// RunManager is the interface for persisting attribution runs.
type RunManager interface {
	InsertRun(ctx context.Context, run *model.AttributionRun) error
}

// errFlagRetrieval is the error message for when a flag cannot be retrieved.
var errFlagRetrieval = errors.New("error getting flag")

// errRequiredFlagEmpty is the error message for a required flag that is empty.
var errRequiredFlagEmpty = errors.New("is required and cannot be empty")

// newStoreCmd creates a new store command.
func newStoreCmd() *cobra.Command {
	var storeCmd = &cobra.Command{
		Use:   "store",
		Short: "Store an exported attribution run in the database",
		Long:  "Store reads a run snapshot exported by the correlate command and persists it in the database using GormAttributionManager",
		RunE:  runStore,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			requiredFlags := []string{"snapshot"}
			driver, _ := cmd.Flags().GetString("db-driver") //nolint:errcheck
			if driver != "sqlite" {
				requiredFlags = append(requiredFlags, "db-user", "db-password", "db-name")
			}
			for _, flag := range requiredFlags {
				value, err := cmd.Flags().GetString(flag)
				if err != nil {
					return fmt.Errorf("%w: %s: %w", errFlagRetrieval, flag, err)
				}
				if value == "" {
					return fmt.Errorf("%s %w", flag, errRequiredFlagEmpty)
				}
			}
			return nil
		},
	}

	storeCmd.PersistentFlags().StringP("snapshot", "s", "", "Path to the run snapshot exported by correlate")
	storeCmd.PersistentFlags().StringP("db-driver", "", "sqlite", "Database driver. options: sqlite|postgres")
	storeCmd.PersistentFlags().StringP("db-path", "", "data/attribution.db", "SQLite database path")
	storeCmd.PersistentFlags().StringP("db-host", "", "localhost", "Database host")
	storeCmd.PersistentFlags().StringP("db-port", "", "5432", "Database port")
	storeCmd.PersistentFlags().StringP("db-user", "", "", "Database user")
	storeCmd.PersistentFlags().StringP("db-password", "", "", "Database password")
	storeCmd.PersistentFlags().StringP("db-name", "", "", "Database name")
	storeCmd.PersistentFlags().StringP("instance-connection-name", "", "", "Cloud SQL instance connection name")

	return storeCmd
}

// runStore opens the database and stores the snapshot named on the flags.
func runStore(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	logger := log.NewLogger(ctx)
	config, err := getConfigFromFlags(cmd)
	if err != nil {
		return fmt.Errorf("error getting config from flags: %w", err)
	}
	dbConn, err := DefaultDatabaseInitializer.Initialize(&config.Database)
	if err != nil {
		return fmt.Errorf("error setting up database connection: %w", err)
	}
	manager, err := db.NewGormAttributionManager(dbConn)
	if err != nil {
		return fmt.Errorf("error initializing GormAttributionManager: %w", err)
	}
	return runStoreWithDeps(ctx, logger, manager, config)
}

// runStoreWithDeps stores the snapshot with the provided dependencies.
func runStoreWithDeps(ctx context.Context, logger types.Logger, manager RunManager, config *Config) error {
	if manager == nil {
		return fmt.Errorf("manager cannot be nil")
	}
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	snap, err := loadSnapshot(config.SnapshotPath)
	if err != nil {
		return err
	}

	run := external.MapSnapshotToRun(snap)
	if err := manager.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("failed to insert run into DB: %w", err)
	}

	logger.Info("Stored attribution run",
		zap.String("runID", run.RunID),
		zap.Int("repositories", len(run.Summaries)))
	return nil
}

// Config is the configuration for the store command.
type Config struct {
	SnapshotPath string
	Database     sql.DatabaseConfig
}

// getConfigFromFlags gets the configuration from the command line flags.
func getConfigFromFlags(cmd *cobra.Command) (*Config, error) {
	snapshotPath, _ := cmd.Flags().GetString("snapshot")                           //nolint:errcheck
	dbDriver, _ := cmd.Flags().GetString("db-driver")                              //nolint:errcheck
	dbPath, _ := cmd.Flags().GetString("db-path")                                  //nolint:errcheck
	dbHost, _ := cmd.Flags().GetString("db-host")                                  //nolint:errcheck
	dbPort, _ := cmd.Flags().GetString("db-port")                                  //nolint:errcheck
	dbUser, _ := cmd.Flags().GetString("db-user")                                  //nolint:errcheck
	dbPassword, _ := cmd.Flags().GetString("db-password")                          //nolint:errcheck
	dbName, _ := cmd.Flags().GetString("db-name")                                  //nolint:errcheck
	instanceConnectionName, _ := cmd.Flags().GetString("instance-connection-name") //nolint:errcheck

	return &Config{
		SnapshotPath: snapshotPath,
		Database: sql.DatabaseConfig{
			Driver:                 dbDriver,
			Path:                   dbPath,
			Host:                   dbHost,
			Port:                   dbPort,
			User:                   dbUser,
			Password:               dbPassword,
			DBName:                 dbName,
			InstanceConnectionName: instanceConnectionName,
		},
	}, nil
}

// loadSnapshot reads and decodes an exported run snapshot.
func loadSnapshot(path string) (*external.RunSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap external.RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	return &snap, nil
}

// main is the main function for the store command.
func main() {
	Execute(os.Args[1:])
}

// Execute executes the store command.
func Execute(args []string) {
	rootCmd := newStoreCmd()
	rootCmd.SetArgs(args) // Set the arguments
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error executing command:", err)
		os.Exit(1)
	}
}
