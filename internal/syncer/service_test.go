package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/internal/keys"
	"github.com/aryanmotgi/Arcus-Sheets/internal/kpi"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/shopify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

var testTabs = Tabs{
	RawOrders:   "RAW_ORDERS",
	Orders:      "ORDERS",
	Fulfillment: "FULFILLMENT",
	Products:    "PRODUCTS",
}

const (
	overridesTab = "MANUAL_OVERRIDES"
	metricsTab   = "METRICS"
)

var fixedNow = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	batch shopify.OrderBatch
	err   error
	calls int
	block chan struct{}
}

func (f *fakeSource) FetchOrders(ctx context.Context, _ shopify.Filters) (shopify.OrderBatch, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.batch, f.err
}

type fakeNotifier struct {
	summaries []Summary
}

func (f *fakeNotifier) Notify(_ context.Context, s Summary) error {
	f.summaries = append(f.summaries, s)
	return nil
}

// tabFailStore fails every write touching one tab.
type tabFailStore struct {
	*destination.MemoryStore
	tab string
}

func (s *tabFailStore) Write(ctx context.Context, updates []destination.Update) error {
	for _, u := range updates {
		if u.Range.Tab == s.tab {
			return &googleapi.Error{Code: http.StatusBadRequest, Message: "protected range"}
		}
	}
	return s.MemoryStore.Write(ctx, updates)
}

type harness struct {
	mem      *destination.MemoryStore
	svc      *Service
	source   *fakeSource
	notifier *fakeNotifier
	state    *MemoryState
	ovs      *overrides.Service
}

func newHarness(t *testing.T, store destination.Store, mem *destination.MemoryStore, source Source) *harness {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	w := destination.NewWriter(store, destination.Config{}, nil,
		destination.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		destination.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	resolver := keys.NewResolver(w, testTabs.RawOrders, nil)
	ovs := overrides.NewService(overrides.NewSheetStore(w, overridesTab, nil, overrides.WithClock(clock)), resolver, nil, nil)
	agg := kpi.NewAggregator(w, metricsTab, decimal.RequireFromString("809.32"), nil, kpi.WithClock(clock))

	h := &harness{mem: mem, notifier: &fakeNotifier{}, state: &MemoryState{}, ovs: ovs}
	if fs, ok := source.(*fakeSource); ok {
		h.source = fs
	}
	svc, err := NewService(ServiceParams{
		Writer:          w,
		Source:          source,
		Overrides:       ovs,
		Resolver:        resolver,
		Aggregator:      agg,
		Notifier:        h.notifier,
		State:           h.state,
		Tabs:            testTabs,
		DefaultUnitCost: decimal.RequireFromString("12.26"),
		Clock:           clock,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func newMemHarness(t *testing.T, source Source) *harness {
	mem := destination.NewMemoryStore()
	return newHarness(t, mem, mem, source)
}

func str(s string) *string { return &s }

func sampleBatch() shopify.OrderBatch {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return shopify.OrderBatch{Orders: []shopify.Order{
		{
			ID:        json.Number("5001"),
			Name:      "#1001",
			CreatedAt: created,
			Customer:  &shopify.Customer{FirstName: "Ada", LastName: "Lovelace"},
			LineItems: []shopify.LineItem{{SKU: "TEE-M", Name: "Tee", Quantity: 2, Price: decimal.RequireFromString("20")}},
		},
		{
			ID:                json.Number("5002"),
			Name:              "#1002",
			CreatedAt:         created.Add(time.Hour),
			FulfillmentStatus: str("fulfilled"),
			LineItems:         []shopify.LineItem{{SKU: "CAP", Name: "Cap", Quantity: 1, Price: decimal.RequireFromString("15")}},
		},
		{ID: json.Number("5003"), Name: "#1003", CreatedAt: created},
	}}
}

func seedDestination(mem *destination.MemoryStore) {
	mem.SetTab(testTabs.Products, [][]string{
		{"sku", "product_name", "unit_cost"},
		{"TEE-M", "Tee", "5"},
		{"CAP", "Cap", "5.00"},
	})
	mem.SetTab(overridesTab, [][]string{
		overrides.Columns,
		{"5001", "1001", "PSL-1", "3.00", "", "2025-03-01T00:00:00Z", "ops_agent"},
	})
}

func cell(t *testing.T, rows [][]string, row int, column string) string {
	t.Helper()
	i := slices.Index(reconcile.Columns, column)
	require.GreaterOrEqual(t, i, 0, column)
	return destination.Cell(rows[row], i)
}

func metricValue(rows [][]string, key kpi.Key) string {
	for _, row := range rows {
		if len(row) > 2 && row[0] == string(key) {
			return row[2]
		}
	}
	return ""
}

func TestRunSyncWritesEveryView(t *testing.T) {
	h := newMemHarness(t, &fakeSource{batch: sampleBatch()})
	seedDestination(h.mem)

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, enums.SyncTriggerManual, summary.Trigger)
	assert.Equal(t, 2, summary.OrdersProcessed)
	assert.Equal(t, 2, summary.RowsWritten)
	assert.Equal(t, 2, summary.RawRowsWritten)
	assert.Equal(t, 1, summary.FulfillmentRows)
	assert.Equal(t, 1, summary.OverridesApplied)
	assert.Equal(t, 1, summary.OverridesPreserved)
	assert.True(t, summary.MetricsUpdated)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, "5003", summary.Skipped[0].OrderID)
	assert.Empty(t, summary.Errors)

	raw := h.mem.Tab(testTabs.RawOrders)
	require.Len(t, raw, 3)
	assert.Equal(t, "5001", raw[1][0])

	view := h.mem.Tab(testTabs.Orders)
	require.Len(t, view, 3)
	assert.Equal(t, reconcile.Columns, view[0])
	assert.Equal(t, "Ada Lovelace", cell(t, view, 1, "customer_name"))
	assert.Equal(t, "PSL-1", cell(t, view, 1, "label_code"))
	assert.Equal(t, "3.00", cell(t, view, 1, "shipping_label_cost"))
	assert.Equal(t, "27.00", cell(t, view, 1, "profit"))
	assert.Equal(t, "10.00", cell(t, view, 2, "profit"))

	fulfillment := h.mem.Tab(testTabs.Fulfillment)
	require.Len(t, fulfillment, 2)
	assert.Equal(t, "5001", cell(t, fulfillment, 1, "order_id"))

	metrics := h.mem.Tab(metricsTab)
	assert.Equal(t, "55.00", metricValue(metrics, kpi.TotalRevenue))
	assert.Equal(t, "15.00", metricValue(metrics, kpi.TotalCOGS))
	assert.Equal(t, "40.00", metricValue(metrics, kpi.GrossProfit))
	assert.Equal(t, "3.00", metricValue(metrics, kpi.TotalShippingLabelCost))
	assert.Equal(t, "37.00", metricValue(metrics, kpi.ContributionProfit))

	require.Len(t, h.notifier.summaries, 1)
	last, ok, err := h.svc.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.RunID, last.RunID)
}

func TestRunSyncIsIdempotent(t *testing.T) {
	h := newMemHarness(t, &fakeSource{batch: sampleBatch()})
	seedDestination(h.mem)

	_, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)
	first := map[string][][]string{}
	for _, tab := range []string{testTabs.RawOrders, testTabs.Orders, testTabs.Fulfillment, metricsTab, overridesTab} {
		first[tab] = h.mem.Tab(tab)
	}

	_, err = h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)
	for tab, rows := range first {
		assert.Equal(t, rows, h.mem.Tab(tab), tab)
	}
}

func TestRunSyncSourceUnavailableLeavesDestinationUntouched(t *testing.T) {
	src := &fakeSource{err: pkgerrors.New(pkgerrors.CodeSourceUnavailable, "source retries exhausted")}
	h := newMemHarness(t, src)
	seedDestination(h.mem)
	before := h.mem.Tab(overridesTab)

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSourceUnavailable))
	assert.Equal(t, StatusFailed, summary.Status)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageFetch, summary.Errors[0].Stage)
	assert.Empty(t, h.mem.Ops())
	assert.Equal(t, before, h.mem.Tab(overridesTab))
	assert.False(t, summary.MetricsUpdated)

	_, saved, _ := h.state.Last(context.Background())
	assert.True(t, saved)
}

func TestRunSyncWrapsUntypedSourceErrors(t *testing.T) {
	h := newMemHarness(t, &fakeSource{err: errors.New("dial tcp: connection refused")})

	_, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSourceUnavailable))
}

func TestRunSyncSkipsMetricsWhenOrdersWriteFails(t *testing.T) {
	mem := destination.NewMemoryStore()
	seedDestination(mem)
	h := newHarness(t, &tabFailStore{MemoryStore: mem, tab: testTabs.Orders}, mem, &fakeSource{batch: sampleBatch()})

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWriteFailure))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, 2, summary.RawRowsWritten)
	assert.Zero(t, summary.RowsWritten)
	assert.False(t, summary.MetricsUpdated)
	require.NotEmpty(t, summary.Errors)
	assert.Equal(t, StageOrdersView, summary.Errors[len(summary.Errors)-1].Stage)
	assert.IsType(t, destination.PartialWrite{}, summary.Errors[len(summary.Errors)-1].Details)

	assert.Empty(t, mem.Tab(metricsTab))
	assert.False(t, mem.HasTab(testTabs.Fulfillment))
}

func TestRunSyncFulfillmentFailureIsPartial(t *testing.T) {
	mem := destination.NewMemoryStore()
	seedDestination(mem)
	h := newHarness(t, &tabFailStore{MemoryStore: mem, tab: testTabs.Fulfillment}, mem, &fakeSource{batch: sampleBatch()})

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, summary.Status)
	assert.True(t, summary.MetricsUpdated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageFulfillment, summary.Errors[0].Stage)
}

func TestRunSyncUpgradesWeakOverrides(t *testing.T) {
	h := newMemHarness(t, &fakeSource{batch: sampleBatch()})
	seedDestination(h.mem)
	h.mem.SetTab(overridesTab, [][]string{
		overrides.Columns,
		{"", "1001", "", "4.85", "", "2025-03-01T00:00:00Z", "ops_agent"},
		{"", "9999", "X", "", "", "2025-03-01T00:00:00Z", "ops_agent"},
	})

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OverridesUpgraded)

	var misses int
	for _, w := range summary.Warnings {
		if w.Code == pkgerrors.CodeKeyResolutionMiss && w.OrderNumber == "9999" {
			misses++
		}
	}
	assert.Equal(t, 1, misses)

	rec, ok, err := h.ovs.Get(context.Background(), "5001", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1001", rec.OrderNumber)
	assert.Equal(t, overrides.SyncUpdatedBy, rec.UpdatedBy)

	view := h.mem.Tab(testTabs.Orders)
	assert.Equal(t, "4.85", cell(t, view, 1, "shipping_label_cost"))
}

func TestOverridesSurviveResync(t *testing.T) {
	src := &fakeSource{batch: sampleBatch()}
	h := newMemHarness(t, src)
	seedDestination(h.mem)

	_, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)

	_, err = h.ovs.Set(context.Background(), overrides.SetRequest{OrderNumber: "1002", LabelCode: str("PSL-2")})
	require.NoError(t, err)

	next := sampleBatch()
	next.Orders[1].LineItems[0].Quantity = 3
	src.batch = next
	_, err = h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
	require.NoError(t, err)

	view := h.mem.Tab(testTabs.Orders)
	assert.Equal(t, "3.00", cell(t, view, 1, "shipping_label_cost"))
	assert.Equal(t, "PSL-2", cell(t, view, 2, "label_code"))
	assert.Equal(t, "3", cell(t, view, 2, "quantity"))
}

func TestRunSyncCanceledBeforeWrites(t *testing.T) {
	h := newMemHarness(t, &fakeSource{batch: sampleBatch()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.svc.RunSync(ctx, enums.SyncTriggerSchedule)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCanceled))
	assert.Equal(t, StatusCanceled, summary.Status)
	assert.Empty(t, h.mem.Ops())
	assert.Len(t, h.notifier.summaries, 1)
}

func TestRunSyncRejectsOverlappingRuns(t *testing.T) {
	src := &fakeSource{batch: sampleBatch(), block: make(chan struct{})}
	h := newMemHarness(t, src)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.RunSync(context.Background(), enums.SyncTriggerSchedule)
		done <- err
	}()

	require.Eventually(t, func() bool {
		if !h.svc.running.TryLock() {
			return true
		}
		h.svc.running.Unlock()
		return false
	}, time.Second, time.Millisecond)

	_, err := h.svc.RunSync(context.Background(), enums.SyncTriggerManual)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	close(src.block)
	require.NoError(t, <-done)
}

func TestRunSyncAgainstShopifyServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-01/orders.json", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"orders":[
			{"id":5001,"name":"#1001","created_at":"2025-03-01T12:00:00Z","fulfillment_status":null,
			 "line_items":[{"id":1,"sku":"TEE-M","name":"Tee","quantity":2,"price":"20.00"}]},
			{"id":5002,"name":"#1002","created_at":"2025-03-01T13:00:00Z","fulfillment_status":"fulfilled",
			 "line_items":[{"id":2,"sku":"CAP","title":"Cap","quantity":1,"price":"15.00"}]},
			"not an order"
		]}`)
	}))
	defer srv.Close()

	client, err := shopify.NewClient(srv.URL, "shpat_test", shopify.WithHTTPClient(srv.Client()), shopify.WithMinInterval(0))
	require.NoError(t, err)
	h := newMemHarness(t, client)
	seedDestination(h.mem)

	summary, err := h.svc.RunSync(context.Background(), enums.SyncTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RowsWritten)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, "37.00", metricValue(h.mem.Tab(metricsTab), kpi.ContributionProfit))
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestRunSyncCountsLabelCostOnceWhenEnteredByNumberAndID(t *testing.T) {
	h := newMemHarness(t, &fakeSource{batch: sampleBatch()})
	seedDestination(h.mem)
	h.mem.SetTab(overridesTab, [][]string{overrides.Columns})
	ctx := context.Background()

	cost := decimal.NewFromInt(4)
	_, err := h.ovs.Set(ctx, overrides.SetRequest{OrderNumber: "1001", ShippingLabelCost: &cost, LabelCode: str("PSL-9")})
	require.NoError(t, err)
	_, err = h.ovs.Set(ctx, overrides.SetRequest{OrderID: "5001", ShippingLabelCost: &cost})
	require.NoError(t, err)

	summary, err := h.svc.RunSync(ctx, enums.SyncTriggerSchedule)
	require.NoError(t, err)
	assert.Zero(t, summary.OverridesUpgraded)

	all, err := h.ovs.Store().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	view := h.mem.Tab(testTabs.Orders)
	assert.Equal(t, "4.00", cell(t, view, 1, "shipping_label_cost"))
	assert.Equal(t, "PSL-9", cell(t, view, 1, "label_code"))

	metrics := h.mem.Tab(metricsTab)
	assert.Equal(t, "4.00", metricValue(metrics, kpi.TotalShippingLabelCost))
	assert.Equal(t, "36.00", metricValue(metrics, kpi.ContributionProfit))
}
