// Package main loads local development data: a superuser, the assessment
// period configurations, two systems in the first organisation, seed users
// and one baseline draft per system.
//
// Schema migrations are expected to have run. Every step is idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/infrastructure"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/repository"
	"webcaf.gov.uk/webcaf/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	organisation := flag.String("organisation", "", "create this organisation when none exists")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	logger.Info("Starting data seeding...")
	repos := service.ReposFromStore(repository.NewStore(db.Pool))
	if err := repos.InTx(ctx, func(tx service.Repos) error {
		return newSeeder(tx).run(ctx, *organisation)
	}); err != nil {
		return err
	}
	logger.Info("Data seeding completed successfully")
	return nil
}
