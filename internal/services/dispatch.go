package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/aseekbot/pipeline/internal/gcp"
	"github.com/aseekbot/pipeline/internal/models"
)

// Dispatcher hands a queued job to whatever executes the pipeline: a managed
// workflow execution in production, or the in-process runner locally.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.QueueMessage) error
}

// WorkflowDispatcher launches one workflow execution per job and records the
// execution name on the status record so the status API can reconcile
// against it later.
type WorkflowDispatcher struct {
	workflow gcp.WorkflowClient
	status   gcp.StatusStore
}

func NewWorkflowDispatcher(workflow gcp.WorkflowClient, status gcp.StatusStore) *WorkflowDispatcher {
	return &WorkflowDispatcher{workflow: workflow, status: status}
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, msg *models.QueueMessage) error {
	argument, err := json.Marshal(msg.Job)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow argument: %w", err)
	}
	executionName, err := d.workflow.Launch(ctx, string(argument))
	if err != nil {
		return fmt.Errorf("failed to launch workflow execution: %w", err)
	}

	id := jobStatusID(&msg.Job)
	if err := d.status.Update(ctx, id, map[string]interface{}{"executionName": executionName}); err != nil {
		slog.Warn("Failed to record execution name on status record.", "id", id, "error", err)
	}
	slog.Info("Workflow execution launched.", "documentId", msg.Job.DocumentID, "execution", executionName)
	return nil
}

// PubSubDispatcher publishes the job to a topic instead of launching it
// directly. The queue consumer on the other side does the launching, which
// keeps the ingestion API's latency independent of the executions API.
type PubSubDispatcher struct {
	topic *pubsub.Topic
}

func NewPubSubDispatcher(ctx context.Context, projectID, topicID string) (*PubSubDispatcher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubDispatcher{topic: client.Topic(topicID)}, nil
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, msg *models.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}
	id, err := d.topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish queue message: %w", err)
	}
	slog.Info("Job enqueued.", "documentId", msg.Job.DocumentID, "messageId", id)
	return nil
}
