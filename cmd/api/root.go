package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/config"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

var rootCmd = &cobra.Command{
	Use:   "household-identity",
	Short: "Household identity reconciliation and onboarding service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// best-effort: without a .env the real environment is used as is
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what every subcommand starts from.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	db     *sqlx.DB
}

func bootstrap() (*app, error) {
	cfg := config.FromEnv()
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		_ = lg.Sync()
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return &app{cfg: cfg, logger: lg, sugar: lg.Sugar(), db: db}, nil
}

func (rt *app) close() {
	_ = rt.db.Close()
	_ = rt.logger.Sync()
}
