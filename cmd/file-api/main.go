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
	fileInstance *services.FileFunction
	once         sync.Once
	initErr      error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("FileOperations", fileOperations)
}

// main is required by the Go Functions Framework.
func main() {}

func fileOperations(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		fileInstance, initErr = services.NewFileAPIFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	fileInstance.Handle(w, r)
}
