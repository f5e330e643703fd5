package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/joho/godotenv"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/pipeline"
	"github.com/aseekbot/pipeline/internal/services"
)

// localserver hosts every function of the pipeline in a single process for
// development. With LOCAL_PIPELINE=true the ingestion API bypasses the
// managed workflow and runs jobs through the in-process runner instead.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded, relying on process environment.", "error", err)
	}

	ctx := context.Background()
	if err := register(ctx); err != nil {
		slog.Error("Failed to initialize local server.", "error", err)
		os.Exit(1)
	}

	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Local server listening.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Server terminated.", "error", err)
		os.Exit(1)
	}
}

func register(ctx context.Context) error {
	validator, err := services.NewValidatorFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	extractor, err := services.NewExtractorFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}
	analyzer, err := services.NewAnalyzerFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	comparator, err := services.NewComparatorFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("comparator: %w", err)
	}
	resultStore, err := services.NewResultStoreFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("result store: %w", err)
	}
	errorHandler, err := services.NewErrorHandlerFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("error handler: %w", err)
	}
	statusAPI, err := services.NewStatusFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("status api: %w", err)
	}
	fileAPI, err := services.NewFileAPIFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("file api: %w", err)
	}

	ingestion, err := buildIngestion(ctx, validator, extractor, analyzer, comparator, resultStore, errorHandler)
	if err != nil {
		return fmt.Errorf("ingestion api: %w", err)
	}
	startAnalysis, err := services.NewStartAnalysisFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("start analysis api: %w", err)
	}

	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/ingest", ingestion.Handle); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/status", statusAPI.Handle); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/start-analysis", startAnalysis.Handle); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/files", fileAPI.Handle); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/validate", services.StageHandler(validator.Process)); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/extract", services.StageHandler(extractor.Process)); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/analyze", services.StageHandler(analyzer.Process)); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/compare", services.StageHandler(comparator.Process)); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/store", services.StageHandler(resultStore.Process)); err != nil {
		return err
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/handle-error", services.StageHandler(errorHandler.Process)); err != nil {
		return err
	}
	return nil
}

// buildIngestion chooses the dispatcher. In LOCAL_PIPELINE mode jobs run
// synchronously through the stage runner; otherwise the standard
// environment-driven wiring applies.
func buildIngestion(
	ctx context.Context,
	validator *services.ValidatorFunction,
	extractor *services.ExtractorFunction,
	analyzer *services.AnalyzerFunction,
	comparator *services.ComparatorFunction,
	resultStore *services.ResultStoreFunction,
	errorHandler *services.ErrorHandlerFunction,
) (*services.IngestionFunction, error) {
	if gcp.GetEnv("LOCAL_PIPELINE", "") != "true" {
		return services.NewIngestionFromEnv(ctx)
	}

	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	status := gcp.NewFirestoreStatusStore(firestoreClient, gcp.GetEnv("STATUS_COLLECTION", "documentStatus"))

	runner := pipeline.NewRunner(
		validator.Process,
		extractor.Process,
		analyzer.Process,
		comparator.Process,
		resultStore.Process,
		errorHandler.Process,
	)
	return services.NewIngestion(status, pipeline.NewRunnerDispatcher(runner)), nil
}
