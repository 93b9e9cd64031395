package kpi

import (
	"context"
	"strings"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/shopspring/decimal"
)

// Columns is the metrics tab header.
var Columns = []string{"metric_key", "label", "value", "updated_at"}

// Schema returns the metrics schema bound to tab.
func Schema(tab string) destination.Schema {
	return destination.Schema{
		Tab:     tab,
		Columns: Columns,
		Aliases: map[string]string{"key": "metric_key", "metric": "metric_key", "last_updated": "updated_at"},
	}
}

// HistoryRecorder receives every recomputed snapshot.
type HistoryRecorder interface {
	Record(ctx context.Context, runID string, at time.Time, snapshot Snapshot) error
}

// Aggregator is the only writer of the metrics tab.
type Aggregator struct {
	w       *destination.Writer
	schema  destination.Schema
	seed    decimal.Decimal
	history HistoryRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithHistory forwards snapshots to h after they are written.
func WithHistory(h HistoryRecorder) Option {
	return func(a *Aggregator) {
		a.history = h
	}
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator writes metrics to tab. setupSeed is used for setup_costs until
// a value exists on the tab.
func NewAggregator(w *destination.Writer, tab string, setupSeed decimal.Decimal, logg *logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{w: w, schema: Schema(tab), seed: setupSeed, logg: logg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type existingMetrics struct {
	setup    decimal.Decimal
	hasSetup bool
	unknown  [][]string
}

// Recompute derives every metric and rewrites the tab. The persisted
// setup_costs value is read first and carried through unchanged; rows with
// keys outside the fixed set are kept after the fixed rows.
func (a *Aggregator) Recompute(ctx context.Context, runID string, rows []reconcile.Row, records []overrides.Record) (Snapshot, error) {
	if _, err := a.w.EnsureHeaders(ctx, a.schema); err != nil {
		return nil, err
	}
	current, err := a.w.Read(ctx, a.schema.Tab)
	if err != nil {
		return nil, err
	}
	prev := a.parse(ctx, current)

	setup := a.seed
	if prev.hasSetup {
		setup = prev.setup
	}
	snapshot := Compute(rows, records, setup)

	at := a.now().UTC()
	stamp := at.Format(time.RFC3339)
	out := make([][]string, 0, len(Keys)+len(prev.unknown))
	for _, k := range Keys {
		out = append(out, []string{string(k), k.Label(), snapshot.Format(k), stamp})
	}
	out = append(out, prev.unknown...)

	if _, err := a.w.ReplaceTab(ctx, a.schema, out); err != nil {
		return nil, err
	}

	if a.history != nil {
		if err := a.history.Record(ctx, runID, at, snapshot); err != nil && a.logg != nil {
			a.logg.Error(a.logg.WithField(ctx, "run_id", runID), "metric history insert failed", err)
		}
	}
	return snapshot, nil
}

func (a *Aggregator) parse(ctx context.Context, rows [][]string) existingMetrics {
	var out existingMetrics
	if len(rows) == 0 {
		return out
	}
	idx := destination.HeaderIndex(a.schema, rows[0])
	keyCol, ok := idx["metric_key"]
	if !ok {
		return out
	}
	valueCol, hasValue := idx["value"]
	for _, row := range rows[1:] {
		key := Key(strings.TrimSpace(destination.Cell(row, keyCol)))
		switch {
		case key == "":
			continue
		case key == SetupCosts:
			if !hasValue {
				continue
			}
			raw := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(destination.Cell(row, valueCol)), "$"), ",", "")
			v, err := decimal.NewFromString(raw)
			if err != nil {
				if a.logg != nil {
					a.logg.Warn(a.logg.WithField(ctx, "value", raw), "setup_costs is not a number, using seed")
				}
				continue
			}
			out.setup, out.hasSetup = v, true
		case key.IsValid():
		default:
			padded := make([]string, len(Columns))
			for i := range padded {
				padded[i] = destination.Cell(row, i)
			}
			out.unknown = append(out.unknown, padded)
		}
	}
	return out
}
