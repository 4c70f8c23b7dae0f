package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/shared"
)

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryKeys) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fakeRenderer struct {
	err     error
	summary []gst.SummaryEntry
}

func (f *fakeRenderer) RenderInvoice(_ context.Context, inv Invoice, summary []gst.SummaryEntry) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.summary = summary
	return []byte("%PDF-" + inv.Number), nil
}

func newTestHandler(t *testing.T, renderer Renderer) (http.Handler, *memoryKeys) {
	t.Helper()
	svc, _ := setup(t)
	keys := &memoryKeys{keys: make(map[string]bool)}
	r := chi.NewRouter()
	NewHandler(svc, HandlerOptions{Keys: keys, Renderer: renderer}).MountRoutes(r)
	return r, keys
}

func send(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const createBody = `{"buyer_id":7,"lines":[{"product_id":3,"quantity":"60","rate":"45000"}]}`

func TestHandlerCreateIsIdempotent(t *testing.T) {
	h, keys := newTestHandler(t, nil)
	headers := map[string]string{IdempotencyHeader: "req-1", ActorHeader: "ops@acme"}

	rr := send(t, h, http.MethodPost, "/invoices", createBody, headers)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	assert.Equal(t, "INV-001", inv.Number)
	assert.Equal(t, "2835000", inv.GrandTotal.String())

	rr = send(t, h, http.MethodPost, "/invoices", createBody, headers)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = send(t, h, http.MethodPost, "/invoices", `{"buyer_id":99,"lines":[{"product_id":3,"quantity":"1","rate":"1"}]}`,
		map[string]string{IdempotencyHeader: "req-2"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.False(t, keys.keys["req-2"], "failed create releases its key")
}

func TestHandlerMissingJurisdiction(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rr := send(t, h, http.MethodPost, "/invoices", `{"buyer_id":8,"lines":[{"product_id":3,"quantity":"1","rate":"1"}]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing Tax Jurisdiction")
}

func TestHandlerGetAndLifecycle(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rr := send(t, h, http.MethodPost, "/invoices", createBody, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = send(t, h, http.MethodGet, "/invoices/1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Number     string             `json:"number"`
		TaxSummary []gst.SummaryEntry `json:"tax_summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.TaxSummary, 1)
	assert.Equal(t, "7214", body.TaxSummary[0].Code)

	rr = send(t, h, http.MethodPost, "/invoices/1/submit", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = send(t, h, http.MethodPost, "/invoices/1/submit", "", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = send(t, h, http.MethodPost, "/invoices/1/cancel", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"invoice_id":1,"released_orders":[]}`, rr.Body.String())

	rr = send(t, h, http.MethodGet, "/invoices/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerTaxSummaryQuery(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	require.Equal(t, http.StatusCreated, send(t, h, http.MethodPost, "/invoices", createBody, nil).Code)

	rr := send(t, h, http.MethodGet, "/reports/tax-summary?invoice_ids=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary TaxSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, "135000", summary.Totals.TotalTax.String())

	rr = send(t, h, http.MethodGet, "/reports/tax-summary?invoice_ids=x", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = send(t, h, http.MethodGet, "/reports/tax-summary?from=2026-04-30&to=2026-04-01", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"field":"to"`)
}

func TestHandlerPDF(t *testing.T) {
	renderer := &fakeRenderer{}
	h, _ := newTestHandler(t, renderer)
	require.Equal(t, http.StatusCreated, send(t, h, http.MethodPost, "/invoices", createBody, nil).Code)

	rr := send(t, h, http.MethodGet, "/invoices/1/pdf", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-INV-001", rr.Body.String())
	assert.Equal(t, "inline; filename=INV-001.pdf", rr.Header().Get("Content-Disposition"))
	require.Len(t, renderer.summary, 1)

	renderer.err = errors.New("gotenberg down")
	rr = send(t, h, http.MethodGet, "/invoices/1/pdf", "", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	h, _ = newTestHandler(t, nil)
	rr = send(t, h, http.MethodGet, "/invoices/1/pdf", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPDFDispositionQuotesHostileNumbers(t *testing.T) {
	for _, number := range []string{`INV"1`, `INV-1"; filename=evil.exe`, `INV\1;x`, "INV 2026/7"} {
		header := pdfDisposition(number)
		disposition, params, err := mime.ParseMediaType(header)
		require.NoError(t, err, header)
		assert.Equal(t, "inline", disposition)
		assert.Equal(t, number+".pdf", params["filename"])
		assert.Len(t, params, 1)
	}
}
