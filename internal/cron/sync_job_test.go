package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/aryanmotgi/Arcus-Sheets/internal/syncer"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
)

type fakeRunner struct {
	triggers []enums.SyncTrigger
	err      error
}

func (f *fakeRunner) RunSync(_ context.Context, trigger enums.SyncTrigger) (syncer.Summary, error) {
	f.triggers = append(f.triggers, trigger)
	return syncer.Summary{Trigger: trigger}, f.err
}

func TestOrderSyncJobRunsScheduledSync(t *testing.T) {
	runner := &fakeRunner{}
	job, err := NewOrderSyncJob(runner)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != OrderSyncJobName {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(runner.triggers) != 1 || runner.triggers[0] != enums.SyncTriggerSchedule {
		t.Fatalf("expected one scheduled run, got %v", runner.triggers)
	}

	runner.err = errors.New("write failure")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected run error to surface")
	}
}

func TestNewOrderSyncJobRequiresRunner(t *testing.T) {
	if _, err := NewOrderSyncJob(nil); err == nil {
		t.Fatal("expected error")
	}
}
