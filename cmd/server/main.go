package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ssfood4u/receipt-validator/internal/config"
	"github.com/ssfood4u/receipt-validator/internal/receipt"
	"github.com/ssfood4u/receipt-validator/internal/server"
	"github.com/ssfood4u/receipt-validator/internal/storage"
	"github.com/ssfood4u/receipt-validator/internal/verification"
	"github.com/ssfood4u/receipt-validator/pkg/database"
	"github.com/ssfood4u/receipt-validator/pkg/utils"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting receipt validator",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("ocr_configured", cfg.OCR.APIKey != ""))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	validator := receipt.NewValidator(receipt.Config{
		APIKey:                   cfg.OCR.APIKey,
		APIURL:                   cfg.OCR.APIURL,
		Timeout:                  cfg.OCR.Timeout,
		Language:                 cfg.OCR.Language,
		PDFSupport:               cfg.Validation.PDFSupport,
		AutoExtractTransactionID: cfg.Validation.AutoExtractTransactionID,
		PDFTextFastPath:          cfg.OCR.PDFTextFastPath,
	}, logger)

	receiptStore, err := storage.NewReceiptStore(cfg.Storage.ReceiptsDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize receipt storage", zap.Error(err))
	}

	repo := verification.NewRepository(db.DB, logger)
	service := verification.NewService(validator, repo, receiptStore, verification.Policy{
		AutoApproveThreshold: cfg.Validation.AutoApproveThreshold,
		RequireTransactionID: cfg.Validation.RequireTransactionID,
	}, logger)

	srv := server.NewServer(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, service, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server shut down cleanly")
}
