package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
)

// ActivityErrorInterceptor tags failed backup activities with the activity
// name as the application error type and logs the failure once per attempt.
type ActivityErrorInterceptor struct {
	interceptor.WorkerInterceptorBase
	Logger zerolog.Logger
}

// NewActivityErrorInterceptor returns an interceptor for worker.Options.Interceptors.
func NewActivityErrorInterceptor(logger zerolog.Logger) *ActivityErrorInterceptor {
	return &ActivityErrorInterceptor{Logger: logger.With().Str("component", "activity").Logger()}
}

func (e *ActivityErrorInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityErrorInbound{next: next, logger: e.Logger}
}

type activityErrorInbound struct {
	interceptor.ActivityInboundInterceptorBase
	next   interceptor.ActivityInboundInterceptor
	logger zerolog.Logger
}

func (a *activityErrorInbound) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return a.next.Init(outbound)
}

func (a *activityErrorInbound) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := a.next.ExecuteActivity(ctx, in)
	if err == nil {
		return result, nil
	}

	info := activity.GetInfo(ctx)
	a.logger.Warn().Err(err).
		Str("activity", info.ActivityType.Name).
		Int32("attempt", info.Attempt).
		Str("workflowID", info.WorkflowExecution.ID).
		Msg("backup activity failed")

	return result, typedError(info.ActivityType.Name, err)
}

// typedError wraps err as an application error typed with name unless it
// already carries a type.
func typedError(name string, err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}
	return temporal.NewApplicationError(err.Error(), name, err)
}
