package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the central worker's task queue. Backup workflows and the
// central activities run here.
const TaskQueue = "backup-tasks"

// NodeTaskQueue returns the task queue served by the backup agent on nodeID.
func NodeTaskQueue(nodeID string) string {
	return "node-" + nodeID
}

// nodeActivityCtx returns a workflow context that routes activity execution
// to a specific node's Temporal task queue. The nightly run is attempted once.
func nodeActivityCtx(ctx workflow.Context, nodeID string) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:              NodeTaskQueue(nodeID),
		ScheduleToStartTimeout: 30 * time.Minute,
		StartToCloseTimeout:    12 * time.Hour,
		HeartbeatTimeout:       2 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

// centralActivityCtx returns a workflow context for activities served by
// the central worker.
func centralActivityCtx(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}
