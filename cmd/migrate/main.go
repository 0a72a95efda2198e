package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uc-timetable-api/migrations"
	"github.com/noah-isme/uc-timetable-api/pkg/config"
	"github.com/noah-isme/uc-timetable-api/pkg/database"
	"github.com/noah-isme/uc-timetable-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	applied, err := migrations.Up(ctx, db.DB)
	if err != nil {
		logr.Fatal("migration failed", zap.Strings("applied", applied), zap.Error(err))
	}
	if len(applied) == 0 {
		logr.Info("schema up to date")
		return
	}
	logr.Info("migrations applied", zap.Strings("files", applied))
}
