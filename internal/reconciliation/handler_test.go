package reconciliation

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newReportRouter(src Source) http.Handler {
	r := chi.NewRouter()
	NewHandler(NewService(src, nil, nil, nil), nil).MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestPendingOrdersJSON(t *testing.T) {
	rr := get(t, newReportRouter(seededSource()), "/reports/pending-orders?only_pending=true")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Rows []struct {
			OrderNumber    string   `json:"order_number"`
			InvoiceNumbers []string `json:"invoice_numbers"`
			PendingQty     string   `json:"pending_qty"`
		} `json:"rows"`
		Totals struct {
			Orders int `json:"orders"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "SO-001", body.Rows[0].OrderNumber)
	assert.Equal(t, []string{"INV-001"}, body.Rows[0].InvoiceNumbers)
	assert.Equal(t, "40", body.Rows[0].PendingQty)
	assert.Equal(t, 1, body.Totals.Orders)
}

func TestPendingOrdersCSV(t *testing.T) {
	src := seededSource()
	src.links = append(src.links, steelLink(1, 11, "INV-002", day(4), "20"))

	rr := get(t, newReportRouter(src), "/reports/pending-orders?format=csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeCSV, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".csv")

	records, err := csv.NewReader(bytes.NewReader(rr.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, "SO-001", records[1][0])
	assert.Equal(t, "INV-001, INV-002", records[1][5])
	assert.Equal(t, "20", records[1][8])
	assert.Equal(t, "3600000.00", records[1][10])
}

func TestPendingOrdersXLSX(t *testing.T) {
	rr := get(t, newReportRouter(seededSource()), "/reports/pending-orders?format=xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeXLSX, rr.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Order Number", rows[0][0])
	assert.Equal(t, "SO-001", rows[1][0])
	assert.Equal(t, "INV-001", rows[1][5])
	assert.Equal(t, "Total", rows[2][0])
}

func TestPendingOrdersRejectsBadQuery(t *testing.T) {
	h := newReportRouter(seededSource())
	for _, target := range []string{
		"/reports/pending-orders?format=pdf",
		"/reports/pending-orders?from=01-04-2026",
		"/reports/pending-orders?buyer_id=abc",
		"/reports/pending-orders?only_pending=maybe",
		"/reports/pending-orders?status=cancelled",
		"/reports/pending-orders?from=2026-04-10&to=2026-04-01",
	} {
		rr := get(t, h, target)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, target)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"), target)
	}
}
