package syncer

import (
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Stage names a pipeline step.
type Stage string

const (
	StageFetch       Stage = "fetch"
	StageCatalog     Stage = "catalog"
	StageBackup      Stage = "backup"
	StageRawSnapshot Stage = "raw_snapshot"
	StageUpgrade     Stage = "upgrade_overrides"
	StageOverrides   Stage = "load_overrides"
	StageOrdersView  Stage = "orders_view"
	StageFulfillment Stage = "fulfillment_view"
	StageMetrics     Stage = "metrics"
	StageNotify      Stage = "notify"
)

// StageError describes one failed stage with enough detail to retry or
// repair it by hand.
type StageError struct {
	Stage   Stage          `json:"stage"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

func stageError(stage Stage, err error) StageError {
	se := StageError{Stage: stage, Code: pkgerrors.CodeOf(err), Message: err.Error()}
	if typed := pkgerrors.As(err); typed != nil {
		se.Details = typed.Details()
	}
	return se
}

// Summary reports everything a run did, including what partially happened.
type Summary struct {
	RunID              string              `json:"run_id"`
	Trigger            enums.SyncTrigger   `json:"trigger"`
	Status             Status              `json:"status"`
	StartedAt          time.Time           `json:"started_at"`
	FinishedAt         time.Time           `json:"finished_at"`
	OrdersProcessed    int                 `json:"orders_processed"`
	RowsWritten        int                 `json:"rows_written"`
	RawRowsWritten     int                 `json:"raw_rows_written"`
	FulfillmentRows    int                 `json:"fulfillment_rows"`
	Skipped            []orders.Skip       `json:"skipped"`
	Warnings           []reconcile.Warning `json:"warnings"`
	OverridesApplied   int                 `json:"overrides_applied"`
	OverridesPreserved int                 `json:"overrides_preserved"`
	OverridesUpgraded  int                 `json:"overrides_upgraded"`
	MetricsUpdated     bool                `json:"metrics_updated"`
	BackupPath         string              `json:"backup_path,omitempty"`
	Errors             []StageError        `json:"errors"`
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) fail(stage Stage, err error) {
	s.Errors = append(s.Errors, stageError(stage, err))
}

func (s *Summary) skipCounts() map[orders.SkipReason]int {
	counts := map[orders.SkipReason]int{}
	for _, sk := range s.Skipped {
		counts[sk.Reason]++
	}
	return counts
}
