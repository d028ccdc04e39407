package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/healo-ai/concierge/pkg/common/database"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	okText   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	errText  = color.New(color.FgRed, color.Bold).SprintFunc()
	keyText  = color.New(color.FgCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "concierge-admin",
	Short: "Operator commands for the concierge backend",
	Long: `Maintenance commands that run against the concierge database.

Available commands:
  migrate       - Create or update tables
  ingest        - Rebuild RAG documents from treatments, hospitals, reviews and normalized inquiries
  ingest-file   - Load a policy or FAQ text file as a RAG document
  search        - Run a lexical RAG search
  rotate-token  - Issue a new public token for an inquiry
  backfill-encryption - Encrypt plaintext PII left on older inquiries`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, ingestCmd, ingestFileCmd, searchCmd, rotateTokenCmd, backfillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errText("error:"), err)
		os.Exit(1)
	}
}

// openDB loads config and connects. Callers close the handle.
func openDB() (*config.Config, *gorm.DB, error) {
	cfg := config.Load()
	db, err := database.OpenPostgres(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return cfg, db, nil
}
