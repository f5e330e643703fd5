package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/aseekbot/pipeline/internal/services"
)

var (
	queueInstance *services.QueueFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ProcessQueueMessage", processQueueMessage)
}

// main is required by the Go Functions Framework.
func main() {}

func processQueueMessage(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		queueInstance, initErr = services.NewQueueProcessorFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}
	return queueInstance.HandleEvent(ctx, e)
}
