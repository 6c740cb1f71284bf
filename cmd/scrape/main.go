package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ironline/price-monitor/internal/catalog"
	"github.com/ironline/price-monitor/internal/config"
	"github.com/ironline/price-monitor/internal/database"
	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/orchestrator"
)

// One-shot scrape run for cron jobs and manual invocation. Events are not
// published from here; the server owns the outbox relay.
func main() {
	var (
		site  = flag.String("site", "", "scrape only this site (default: all active sites)")
		force = flag.Bool("force", false, "scrape even when the site is not due")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := db.EnsureSites(ctx, database.DefaultSeedSites()); err != nil {
		logger.Error("failed to seed competitor sites", "error", err)
		os.Exit(1)
	}

	cat := catalog.New(db, nil, logger)
	factory := orchestrator.DefaultScraperFactory(
		time.Duration(cfg.Scraper.TimeoutSeconds)*time.Second,
		cfg.Scraper.UserAgent,
		logger,
	)
	orch := orchestrator.New(db, cat, factory, logger)

	result, err := orch.Run(ctx, *site, *force)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	for _, s := range result.Sites {
		if s.Status == models.ScrapeStatusFailed {
			os.Exit(1)
		}
	}
}
