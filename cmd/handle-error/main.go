package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/aseekbot/pipeline/internal/services"
)

var (
	errorInstance *services.ErrorHandlerFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleError", handleError)
}

// main is required by the Go Functions Framework.
func main() {}

func handleError(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		errorInstance, initErr = services.NewErrorHandlerFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	services.StageHandler(errorInstance.Process)(w, r)
}
