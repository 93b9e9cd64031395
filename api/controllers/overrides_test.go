package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
)

type fakeOverrideService struct {
	records map[string]overrides.Record
	sets    []overrides.SetRequest
	setErr  error
}

func (f *fakeOverrideService) Get(_ context.Context, orderID, orderNumber string) (overrides.Record, bool, error) {
	if rec, ok := f.records[orderID]; ok && orderID != "" {
		return rec, true, nil
	}
	for _, rec := range f.records {
		if orderNumber != "" && rec.OrderNumber == orderNumber {
			return rec, true, nil
		}
	}
	return overrides.Record{}, false, nil
}

func (f *fakeOverrideService) Set(_ context.Context, req overrides.SetRequest) (overrides.Record, error) {
	f.sets = append(f.sets, req)
	if f.setErr != nil {
		return overrides.Record{}, f.setErr
	}
	rec := overrides.Record{OrderID: req.OrderID, OrderNumber: req.OrderNumber, UpdatedBy: overrides.DefaultUpdatedBy}
	if req.ShippingLabelCost != nil {
		rec.ShippingLabelCost = decimal.NewNullDecimal(*req.ShippingLabelCost)
	}
	return rec, nil
}

func TestOverrideSetDecodesRequest(t *testing.T) {
	svc := &fakeOverrideService{}
	body := `{"order_id":"5001","shipping_label_cost":"3.00","notes":"reprinted","append_notes":true}`

	rec := httptest.NewRecorder()
	OverrideSet(svc, nil)(rec, httptest.NewRequest(http.MethodPut, "/overrides", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.sets, 1)
	req := svc.sets[0]
	assert.Equal(t, "5001", req.OrderID)
	require.NotNil(t, req.ShippingLabelCost)
	assert.Equal(t, "3.00", req.ShippingLabelCost.StringFixed(2))
	require.NotNil(t, req.Notes)
	assert.Equal(t, "reprinted", *req.Notes)
	assert.True(t, req.AppendNotes)

	var out struct {
		Data overrides.Record `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "5001", out.Data.OrderID)
	assert.True(t, out.Data.ShippingLabelCost.Valid)
}

func TestOverrideSetRejectsUnknownFields(t *testing.T) {
	svc := &fakeOverrideService{}
	rec := httptest.NewRecorder()
	OverrideSet(svc, nil)(rec, httptest.NewRequest(http.MethodPut, "/overrides", strings.NewReader(`{"order_id":"5001","cost":1}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.sets)
}

func TestOverrideSetRequiresAKey(t *testing.T) {
	svc := &fakeOverrideService{}
	rec := httptest.NewRecorder()
	OverrideSet(svc, nil)(rec, httptest.NewRequest(http.MethodPut, "/overrides", strings.NewReader(`{"notes":"x"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.sets)
}

func TestOverrideSetSurfacesServiceErrors(t *testing.T) {
	svc := &fakeOverrideService{setErr: pkgerrors.New(pkgerrors.CodeConflict, "override for order already exists")}
	rec := httptest.NewRecorder()
	OverrideSet(svc, nil)(rec, httptest.NewRequest(http.MethodPut, "/overrides", strings.NewReader(`{"order_number":"1001"}`)))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "override for order already exists", decodeError(t, rec).Message)
}

func TestOverrideGet(t *testing.T) {
	svc := &fakeOverrideService{records: map[string]overrides.Record{
		"5001": {OrderID: "5001", OrderNumber: "1001", LabelCode: "PSL-1"},
	}}

	rec := httptest.NewRecorder()
	OverrideGet(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/overrides?order_number=1001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label_code":"PSL-1"`)

	rec = httptest.NewRecorder()
	OverrideGet(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/overrides?order_id=9999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	OverrideGet(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/overrides", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
