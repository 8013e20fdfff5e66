package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caseflow/internal"
	"caseflow/internal/api"
	"caseflow/internal/config"
	"caseflow/internal/container"
	"caseflow/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))

	// Create dependency injection container
	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	// Preload the configured dataset so the first request has a session
	if appConfig.Data.ExcelFile != "" {
		s, err := appContainer.LoadDataset(session.DefaultParams())
		if err != nil {
			log.Fatalf("Failed to load %s: %v", appConfig.Data.ExcelFile, err)
		}
		logger.Info("Loaded %d cases from %s (%d rejected)", s.Table().Len(), appConfig.Data.ExcelFile, s.Report.Count)
	} else {
		logger.Info("No EXCEL_FILE configured, waiting for an upload")
	}

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           api.NewServer(appContainer.Engine, appContainer.Sessions, appContainer.Store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting caseflow server on port %s", appConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Container shutdown failed: %v", err)
	}
}
