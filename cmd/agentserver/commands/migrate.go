package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentserver/agentserver/internal/config"
	"github.com/agentserver/agentserver/internal/logging"
	"github.com/agentserver/agentserver/internal/sessiondb"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the session database schema without serving",
	Long: `Opens the session database, applying any pending schema changes, then
exits. sessiondb.Open applies the full schema on every open, so this
command's only purpose is to surface migration failures (a locked
database, a corrupt file) before a deployment starts serving traffic.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "directory", "", "Working directory")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(migrateDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("ensure paths: %w", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dataDir := paths.Data
	if appConfig.DataDir != "" {
		dataDir = appConfig.DataDir
	}
	dbPath := filepath.Join(dataDir, "sessions.db")

	db, err := sessiondb.Open(dbPath)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	defer db.Close()

	logging.Info().Str("path", dbPath).Msg("session database schema up to date")
	fmt.Printf("migrated %s\n", dbPath)
	return nil
}
