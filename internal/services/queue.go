package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2/event"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// pubSubMessage mirrors the envelope delivered by a Pub/Sub-triggered event.
type pubSubMessage struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
}

// QueueFunction consumes queued ingestion messages and hands each job to the
// dispatcher. It exists so the ingestion API can stay fast: the API only
// enqueues, this consumer launches the execution.
type QueueFunction struct {
	dispatcher Dispatcher
}

func NewQueueProcessor(dispatcher Dispatcher) *QueueFunction {
	return &QueueFunction{dispatcher: dispatcher}
}

// NewQueueProcessorFromEnv builds the consumer against real GCP clients.
func NewQueueProcessorFromEnv(ctx context.Context) (*QueueFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	executor, err := gcp.NewWorkflowsExecutor(ctx, projectID,
		gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		gcp.GetEnv("WORKFLOW_ID", "document-analysis-pipeline"),
	)
	if err != nil {
		return nil, err
	}
	status := gcp.NewFirestoreStatusStore(firestoreClient, gcp.GetEnv("STATUS_COLLECTION", "documentStatus"))
	return NewQueueProcessor(NewWorkflowDispatcher(executor, status)), nil
}

// HandleEvent unwraps the CloudEvent envelope and dispatches the job. A
// decode failure is returned so the delivery is retried or dead-lettered by
// the platform rather than silently dropped.
func (f *QueueFunction) HandleEvent(ctx context.Context, e cloudevents.Event) error {
	var envelope pubSubMessage
	if err := e.DataAs(&envelope); err != nil {
		return fmt.Errorf("failed to decode event envelope: %w", err)
	}

	var msg models.QueueMessage
	if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
		return fmt.Errorf("failed to decode queue message: %w", err)
	}
	if msg.Job.DocumentID == "" {
		return fmt.Errorf("queue message missing document id")
	}

	slog.Info("Queue message received.", "requestId", msg.RequestID, "documentId", msg.Job.DocumentID)
	return f.dispatcher.Dispatch(ctx, &msg)
}
