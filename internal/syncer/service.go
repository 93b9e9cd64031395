// Package syncer runs the sync pipeline: fetch, snapshot, reconcile, write
// the views and recompute metrics.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/internal/kpi"
	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/shopify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Source fetches orders from the commerce platform.
type Source interface {
	FetchOrders(ctx context.Context, filters shopify.Filters) (shopify.OrderBatch, error)
}

// Snapshotter receives every freshly written raw snapshot.
type Snapshotter interface {
	UseSnapshot(records []orders.LineRecord)
	Invalidate()
}

// Recorder exports run metrics.
type Recorder interface {
	ObserveRun(outcome string, duration time.Duration)
	SetRowsWritten(view string, rows int)
	AddSkipped(reason string, n int)
	SetPreserved(n int)
}

// Tabs names the destination tabs a run touches.
type Tabs struct {
	RawOrders   string
	Orders      string
	Fulfillment string
	Products    string
}

type ServiceParams struct {
	Writer     *destination.Writer
	Source     Source
	Overrides  *overrides.Service
	Resolver   Snapshotter
	Engine     *reconcile.Engine
	Aggregator *kpi.Aggregator
	Notifier   Notifier
	State      StateStore
	Metrics    Recorder
	Logger     *logger.Logger

	Tabs            Tabs
	Filters         shopify.Filters
	DefaultUnitCost decimal.Decimal
	BackupDir       string
	RunTimeout      time.Duration
	Clock           func() time.Time
}

// Service owns the run. Only one run executes at a time per process.
type Service struct {
	writer     *destination.Writer
	source     Source
	overrides  *overrides.Service
	resolver   Snapshotter
	engine     *reconcile.Engine
	aggregator *kpi.Aggregator
	notifier   Notifier
	state      StateStore
	metrics    Recorder
	logg       *logger.Logger

	tabs       Tabs
	filters    shopify.Filters
	unitCost   decimal.Decimal
	backupDir  string
	runTimeout time.Duration
	now        func() time.Time

	running sync.Mutex
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Writer == nil {
		return nil, errors.New("destination writer is required")
	}
	if params.Source == nil {
		return nil, errors.New("source is required")
	}
	if params.Overrides == nil {
		return nil, errors.New("override service is required")
	}
	if params.Aggregator == nil {
		return nil, errors.New("metrics aggregator is required")
	}
	if params.Tabs.RawOrders == "" || params.Tabs.Orders == "" {
		return nil, errors.New("raw orders and orders tabs are required")
	}
	engine := params.Engine
	if engine == nil {
		engine = reconcile.NewEngine(params.Logger)
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		writer:     params.Writer,
		source:     params.Source,
		overrides:  params.Overrides,
		resolver:   params.Resolver,
		engine:     engine,
		aggregator: params.Aggregator,
		notifier:   params.Notifier,
		state:      params.State,
		metrics:    params.Metrics,
		logg:       params.Logger,
		tabs:       params.Tabs,
		filters:    params.Filters,
		unitCost:   params.DefaultUnitCost,
		backupDir:  params.BackupDir,
		runTimeout: params.RunTimeout,
		now:        now,
	}, nil
}

// RunSync executes one full run. The summary is always populated; the error
// is set when the run aborted (source unavailable, schema mismatch, write
// failure, cancellation). Re-running with no upstream change rewrites the
// same views.
func (s *Service) RunSync(ctx context.Context, trigger enums.SyncTrigger) (Summary, error) {
	if !s.running.TryLock() {
		return Summary{Trigger: trigger, Status: StatusFailed}, pkgerrors.New(pkgerrors.CodeConflict, "sync already running")
	}
	defer s.running.Unlock()

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	summary := Summary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
		Skipped:   []orders.Skip{},
		Warnings:  []reconcile.Warning{},
		Errors:    []StageError{},
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(s.logg.WithRunID(ctx, summary.RunID), map[string]any{"trigger": string(trigger)})
		s.logg.Info(ctx, "sync run started")
	}

	err := s.run(ctx, &summary)
	summary.FinishedAt = s.now().UTC()
	summary.Status = outcome(summary, err)
	s.finish(ctx, summary, err)
	return summary, err
}

func (s *Service) run(ctx context.Context, summary *Summary) error {
	s.writer.BeginRun()
	if s.resolver != nil {
		s.resolver.Invalidate()
	}

	batch, err := s.source.FetchOrders(ctx, s.filters)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeCanceled) && pkgerrors.CodeOf(err) != pkgerrors.CodeSourceUnavailable {
			err = pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "fetch orders")
		}
		summary.fail(StageFetch, err)
		return err
	}
	if err := checkpoint(ctx, StageFetch); err != nil {
		summary.fail(StageFetch, err)
		return err
	}

	flat := orders.Flatten(batch, s.catalog(ctx, summary))
	summary.OrdersProcessed = flat.Orders
	summary.Skipped = append(summary.Skipped, flat.Skipped...)
	for _, sk := range flat.Skipped {
		s.warn(s.orderCtx(ctx, sk.OrderID, sk.OrderNumber), string(sk.Reason))
	}

	if s.backupDir != "" {
		path, n, err := s.overrides.BackupToDir(ctx, s.backupDir, s.now())
		if err != nil {
			summary.fail(StageBackup, err)
			s.logError(ctx, "override backup failed", err)
		} else {
			summary.BackupPath = path
			s.info(s.withFields(ctx, map[string]any{"path": path, "records": n}), "overrides backed up")
		}
	}

	if _, err := s.writer.ReplaceTab(ctx, orders.RawSchema(s.tabs.RawOrders), orders.EncodeRaw(flat.Records)); err != nil {
		summary.fail(StageRawSnapshot, err)
		return err
	}
	summary.RawRowsWritten = len(flat.Records)
	if s.resolver != nil {
		s.resolver.UseSnapshot(flat.Records)
	}

	upgrade, err := s.overrides.UpgradeWeak(ctx)
	if err != nil {
		summary.fail(StageUpgrade, err)
		s.logError(ctx, "weak override upgrade failed", err)
	}
	summary.OverridesUpgraded = len(upgrade.Upgraded)
	for _, rec := range upgrade.Unresolved {
		summary.Warnings = append(summary.Warnings, reconcile.Warning{
			Index:       -1,
			OrderNumber: rec.OrderNumber,
			Code:        pkgerrors.CodeKeyResolutionMiss,
			Reason:      "override order number not found in raw snapshot",
		})
	}
	if err := checkpoint(ctx, StageUpgrade); err != nil {
		summary.fail(StageUpgrade, err)
		return err
	}

	// The override snapshot is read once and used for the whole merge.
	records, err := s.overrides.Store().ListAll(ctx)
	if err != nil {
		err = dependency(err, "list overrides")
		summary.fail(StageOverrides, err)
		return err
	}

	res := s.engine.Reconcile(ctx, flat.Records, records)
	summary.Warnings = append(summary.Warnings, res.Warnings...)
	summary.OverridesApplied = res.Applied
	summary.OverridesPreserved = res.Preserved
	if err := checkpoint(ctx, StageOverrides); err != nil {
		summary.fail(StageOverrides, err)
		return err
	}

	if _, err := s.writer.ReplaceTab(ctx, reconcile.Schema(s.tabs.Orders), reconcile.Encode(res.Rows)); err != nil {
		summary.fail(StageOrdersView, err)
		return err
	}
	summary.RowsWritten = len(res.Rows)

	if s.tabs.Fulfillment != "" {
		open := reconcile.Open(res.Rows)
		if _, err := s.writer.ReplaceTab(ctx, reconcile.Schema(s.tabs.Fulfillment), reconcile.Encode(open)); err != nil {
			summary.fail(StageFulfillment, err)
			s.logError(ctx, "fulfillment view write failed", err)
		} else {
			summary.FulfillmentRows = len(open)
		}
	}

	// Metrics only ever see a fully written merged view.
	if err := checkpoint(ctx, StageMetrics); err != nil {
		summary.fail(StageMetrics, err)
		return err
	}
	if _, err := s.aggregator.Recompute(ctx, summary.RunID, res.Rows, records); err != nil {
		summary.fail(StageMetrics, err)
		s.logError(ctx, "metrics recompute failed", err)
		return nil
	}
	summary.MetricsUpdated = true
	return nil
}

func (s *Service) catalog(ctx context.Context, summary *Summary) *orders.CostCatalog {
	if s.tabs.Products == "" {
		return orders.NewCostCatalog(s.unitCost)
	}
	if err := s.writer.EnsureTab(ctx, s.tabs.Products); err != nil {
		summary.fail(StageCatalog, err)
		s.logError(ctx, "product cost catalog unavailable, using default unit cost", err)
		return orders.NewCostCatalog(s.unitCost)
	}
	rows, err := s.writer.Read(ctx, s.tabs.Products)
	if err != nil {
		summary.fail(StageCatalog, err)
		s.logError(ctx, "product cost catalog unavailable, using default unit cost", err)
		return orders.NewCostCatalog(s.unitCost)
	}
	return orders.LoadCostCatalog(rows, s.unitCost)
}

func (s *Service) finish(ctx context.Context, summary Summary, runErr error) {
	if s.metrics != nil {
		s.metrics.ObserveRun(string(summary.Status), summary.Duration())
		if runErr == nil || summary.RowsWritten > 0 {
			s.metrics.SetRowsWritten("raw_orders", summary.RawRowsWritten)
			s.metrics.SetRowsWritten("orders", summary.RowsWritten)
			s.metrics.SetRowsWritten("fulfillment", summary.FulfillmentRows)
			s.metrics.SetPreserved(summary.OverridesPreserved)
		}
		for reason, n := range summary.skipCounts() {
			s.metrics.AddSkipped(string(reason), n)
		}
	}

	// Side effects run on a fresh context so a canceled run is still reported.
	sideCtx := context.WithoutCancel(ctx)
	var sideErr error
	if s.notifier != nil {
		if err := s.notifier.Notify(sideCtx, summary); err != nil {
			sideErr = multierr.Append(sideErr, fmt.Errorf("notify: %w", err))
		}
	}
	if s.state != nil {
		if err := s.state.SaveLast(sideCtx, summary); err != nil {
			sideErr = multierr.Append(sideErr, fmt.Errorf("save last summary: %w", err))
		}
	}
	if sideErr != nil {
		s.logError(s.withFields(ctx, map[string]any{"failures": len(multierr.Errors(sideErr))}), "sync side effects failed", sideErr)
	}

	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"status":              string(summary.Status),
		"orders_processed":    summary.OrdersProcessed,
		"rows_written":        summary.RowsWritten,
		"skipped":             len(summary.Skipped),
		"warnings":            len(summary.Warnings),
		"overrides_preserved": summary.OverridesPreserved,
		"duration_ms":         summary.Duration().Milliseconds(),
	})
	if runErr != nil {
		s.logg.Error(logCtx, "sync run aborted", runErr)
		return
	}
	s.logg.Info(logCtx, "sync run finished")
}

// Last returns the summary of the previous run.
func (s *Service) Last(ctx context.Context) (Summary, bool, error) {
	if s.state == nil {
		return Summary{}, false, nil
	}
	return s.state.Last(ctx)
}

func outcome(summary Summary, err error) Status {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeCanceled):
		return StatusCanceled
	case err != nil:
		return StatusFailed
	case len(summary.Errors) > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

func checkpoint(ctx context.Context, after Stage) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "sync canceled after "+string(after))
	}
	return nil
}

func dependency(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func (s *Service) orderCtx(ctx context.Context, orderID, orderNumber string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrder(ctx, orderID, orderNumber)
}

func (s *Service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
