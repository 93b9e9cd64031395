package cron

import (
	"context"
	"errors"

	"github.com/aryanmotgi/Arcus-Sheets/internal/syncer"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
)

// OrderSyncJobName is the registry name of the order sync.
const OrderSyncJobName = "order-sync"

type syncRunner interface {
	RunSync(ctx context.Context, trigger enums.SyncTrigger) (syncer.Summary, error)
}

// OrderSyncJob runs one sync per cycle.
type OrderSyncJob struct {
	runner syncRunner
}

func NewOrderSyncJob(runner syncRunner) (*OrderSyncJob, error) {
	if runner == nil {
		return nil, errors.New("sync runner required")
	}
	return &OrderSyncJob{runner: runner}, nil
}

func (j *OrderSyncJob) Name() string { return OrderSyncJobName }

// Run triggers a scheduled sync. A partial run is not an error; the summary
// already carries its stage failures.
func (j *OrderSyncJob) Run(ctx context.Context) error {
	_, err := j.runner.RunSync(ctx, enums.SyncTriggerSchedule)
	return err
}
