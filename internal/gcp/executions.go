package gcp

import (
	"context"
	"fmt"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// ExecutionState mirrors the workflow execution lifecycle as seen by the
// status API.
type ExecutionState string

const (
	ExecutionActive    ExecutionState = "ACTIVE"
	ExecutionSucceeded ExecutionState = "SUCCEEDED"
	ExecutionFailed    ExecutionState = "FAILED"
	ExecutionCancelled ExecutionState = "CANCELLED"
	ExecutionUnknown   ExecutionState = "UNKNOWN"
)

// ExecutionInfo is a snapshot of one workflow execution.
type ExecutionInfo struct {
	Name      string
	State     ExecutionState
	Result    string // JSON output of a SUCCEEDED execution
	Error     string
	StartTime time.Time
}

// WorkflowClient launches document-analysis workflow executions and reports
// their live state for status reconciliation.
type WorkflowClient interface {
	Launch(ctx context.Context, argumentJSON string) (string, error)
	Describe(ctx context.Context, name string) (*ExecutionInfo, error)
}

// WorkflowsExecutor implements WorkflowClient over the Cloud Workflows
// Executions API.
type WorkflowsExecutor struct {
	client           *executions.Client
	projectID        string
	workflowLocation string
	workflowID       string
}

func NewWorkflowsExecutor(ctx context.Context, projectID, location, workflowID string) (*WorkflowsExecutor, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowsExecutor{
		client:           client,
		projectID:        projectID,
		workflowLocation: location,
		workflowID:       workflowID,
	}, nil
}

func (w *WorkflowsExecutor) Launch(ctx context.Context, argumentJSON string) (string, error) {
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", w.projectID, w.workflowLocation, w.workflowID),
		Execution: &executionspb.Execution{
			Argument: argumentJSON,
		},
	}
	exec, err := w.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

func (w *WorkflowsExecutor) Describe(ctx context.Context, name string) (*ExecutionInfo, error) {
	exec, err := w.client.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", name, err)
	}

	info := &ExecutionInfo{
		Name:      exec.GetName(),
		Result:    exec.GetResult(),
		StartTime: exec.GetStartTime().AsTime(),
	}
	if e := exec.GetError(); e != nil {
		info.Error = e.GetContext()
		if info.Error == "" {
			info.Error = e.GetPayload()
		}
	}
	switch exec.GetState() {
	case executionspb.Execution_ACTIVE:
		info.State = ExecutionActive
	case executionspb.Execution_SUCCEEDED:
		info.State = ExecutionSucceeded
	case executionspb.Execution_FAILED:
		info.State = ExecutionFailed
	case executionspb.Execution_CANCELLED:
		info.State = ExecutionCancelled
	default:
		info.State = ExecutionUnknown
	}
	return info, nil
}
