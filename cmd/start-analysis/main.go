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
	startInstance *services.StartAnalysisFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("StartAnalysis", startAnalysis)
}

// main is required by the Go Functions Framework.
func main() {}

func startAnalysis(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		startInstance, initErr = services.NewStartAnalysisFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	startInstance.Handle(w, r)
}
