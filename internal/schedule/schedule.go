// Package schedule registers the Temporal cron schedules that drive the
// nightly backup, retention and verification workflows.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	temporalclient "go.temporal.io/sdk/client"
)

// Cron describes one schedule.
type Cron struct {
	ID       string
	Cron     string
	Workflow interface{}
	Args     []interface{}
}

// Creator is the part of temporalclient.ScheduleClient used here.
type Creator interface {
	Create(ctx context.Context, options temporalclient.ScheduleOptions) (temporalclient.ScheduleHandle, error)
}

// Register creates every schedule on taskQueue. Schedules that already
// exist are left alone so that re-deploys do not fail. Overlapping runs are
// skipped.
func Register(ctx context.Context, sc Creator, taskQueue string, schedules []Cron, logger zerolog.Logger) error {
	for _, s := range schedules {
		_, err := sc.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.ID,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.Cron},
			},
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.ID,
				Workflow:  s.Workflow,
				Args:      s.Args,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if alreadyExists(err) {
				logger.Info().Str("id", s.ID).Msg("cron schedule already exists, skipping")
				continue
			}
			return fmt.Errorf("create cron schedule %s: %w", s.ID, err)
		}
		logger.Info().Str("id", s.ID).Str("cron", s.Cron).Msg("created cron schedule")
	}
	return nil
}

func alreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "AlreadyExists") || strings.Contains(msg, "already registered")
}
