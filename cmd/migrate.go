package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/ktwin/mqtt-bridge/internal/db"
	"github.com/ktwin/mqtt-bridge/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the exchanges journal (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.MySQL.Enabled() && !cfg.ClickHouse.Enabled() {
			return fmt.Errorf("nothing to migrate: mysql.dsn and clickhouse.dsn are empty")
		}

		if cfg.MySQL.Enabled() {
			sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer sqlDB.Close()
			if err := runMigration(cmd, sqlDB, filepath.Join(migrationsDir, "001_init.sql")); err != nil {
				return err
			}
		}

		if cfg.ClickHouse.Enabled() {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()
			if err := runMigration(cmd, chDB, filepath.Join(migrationsDir, "clickhouse", "001_exchanges.sql")); err != nil {
				return err
			}
		}

		fmt.Println(">> Migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the SQL migrations")
}

func runMigration(cmd *cobra.Command, conn *sqlx.DB, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", path, err)
	}
	n, err := db.Apply(cmd.Context(), conn, string(script))
	if err != nil {
		return fmt.Errorf("exec migration %s: %w", path, err)
	}
	logger.Log.Info("migration applied", zap.String("file", path), zap.Int("statements", n))
	return nil
}
