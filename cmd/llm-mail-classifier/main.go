package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/di"
	"github.com/mikey/llm-mail-classifier/internal/learned"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	pipeline *core.Pipeline,
	messageSource core.MessageSource,
	classifier *learned.Classifier,
	teacher core.TeacherClient,
	resultCache core.ResultCache,
	resultStore core.ResultStore,
) error {
	defer logger.Sync()

	pipeline.Start(context.Background())

	if err := messageSource.Start(); err != nil {
		logger.Fatal("Failed to start message source", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop intake first so no new work arrives while the pipeline drains.
	if err := messageSource.Stop(); err != nil {
		logger.Error("Failed to stop message source", zap.Error(err))
	}

	pipeline.Stop()

	// Checkpoint the classifier so learned state survives the restart.
	if err := classifier.Save(context.Background()); err != nil {
		logger.Error("Failed to save classifier state", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := teacher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close teacher client", zap.Error(err))
		}
	}
	if stopper, ok := resultCache.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	if closer, ok := resultCache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close result cache", zap.Error(err))
		}
	}
	if closer, ok := resultStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close result store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
