package invoicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	mu       sync.Mutex
	nextID   int64
	invoices map[int64]Invoice
	audits   []shared.AuditLog
	ledger   *mockLedger
}

func newMockRepository() *mockRepository {
	return &mockRepository{invoices: make(map[int64]Invoice), ledger: newMockLedger()}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTx{m: m, staged: make(map[int64]Invoice)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, inv := range tx.staged {
		m.invoices[id] = inv
	}
	m.audits = append(m.audits, tx.audits...)
	m.ledger.commit()
	return nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (m *mockRepository) SummaryLines(_ context.Context, q TaxSummaryQuery) ([]gst.SummaryLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []gst.SummaryLine
	for id := int64(1); id <= m.nextID; id++ {
		inv, ok := m.invoices[id]
		if !ok || inv.Status == StatusCancelled {
			continue
		}
		if len(q.InvoiceIDs) > 0 && !containsID(q.InvoiceIDs, id) {
			continue
		}
		if len(q.InvoiceIDs) == 0 && (inv.InvoiceDate.Before(q.From) || inv.InvoiceDate.After(q.To)) {
			continue
		}
		out = append(out, inv.SummaryLines()...)
	}
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type mockTx struct {
	m      *mockRepository
	staged map[int64]Invoice
	audits []shared.AuditLog
}

func (t *mockTx) NumberInUse(_ context.Context, number string) (bool, error) {
	for _, inv := range t.m.invoices {
		if inv.Number == number && inv.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) Insert(_ context.Context, inv *Invoice) error {
	t.m.nextID++
	inv.ID = t.m.nextID
	t.staged[inv.ID] = *inv
	return nil
}

func (t *mockTx) Lock(_ context.Context, id int64) (Invoice, error) {
	inv, ok := t.m.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *mockTx) UpdateStatus(_ context.Context, id int64, status Status) error {
	inv := t.m.invoices[id]
	inv.Status = status
	t.staged[id] = inv
	return nil
}

func (t *mockTx) RecordAudit(_ context.Context, entry shared.AuditLog) error {
	t.audits = append(t.audits, entry)
	return nil
}

func (t *mockTx) Ledger() fulfilment.TxRepository {
	return t.m.ledger
}

// mockLedger is a fulfilment.TxRepository over a single map; writes land
// directly and are visible after the surrounding mock commit.
type mockLedger struct {
	orders map[int64]fulfilment.SalesOrder
	links  map[[2]int64]decimal.Decimal
}

func newMockLedger() *mockLedger {
	return &mockLedger{orders: make(map[int64]fulfilment.SalesOrder), links: make(map[[2]int64]decimal.Decimal)}
}

func (l *mockLedger) commit() {}

func (l *mockLedger) LockOrder(_ context.Context, id int64) (fulfilment.SalesOrder, error) {
	o, ok := l.orders[id]
	if !ok {
		return fulfilment.SalesOrder{}, fulfilment.ErrOrderNotFound
	}
	return o, nil
}

func (l *mockLedger) InvoiceStatus(context.Context, int64) (string, error) {
	return string(StatusSubmitted), nil
}

func (l *mockLedger) LinkedQuantity(_ context.Context, orderID, exclude int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for k, q := range l.links {
		if k[0] == orderID && k[1] != exclude {
			sum = sum.Add(q)
		}
	}
	return sum, nil
}

func (l *mockLedger) UpsertLink(_ context.Context, orderID, invoiceID int64, q decimal.Decimal) error {
	l.links[[2]int64{orderID, invoiceID}] = q
	return nil
}

func (l *mockLedger) DeleteLink(_ context.Context, orderID, invoiceID int64) (bool, error) {
	k := [2]int64{orderID, invoiceID}
	_, ok := l.links[k]
	delete(l.links, k)
	return ok, nil
}

func (l *mockLedger) CountLinks(_ context.Context, orderID int64) (int, error) {
	n := 0
	for k := range l.links {
		if k[0] == orderID {
			n++
		}
	}
	return n, nil
}

func (l *mockLedger) OrdersForInvoice(_ context.Context, invoiceID int64) ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= int64(len(l.orders)); id++ {
		if _, ok := l.links[[2]int64{id, invoiceID}]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *mockLedger) UpdateOrderStatus(_ context.Context, orderID int64, status fulfilment.OrderStatus) error {
	o := l.orders[orderID]
	o.Status = status
	l.orders[orderID] = o
	return nil
}

type mockCatalog struct {
	products map[int64]Product
	parties  map[int64]Party
}

func (c *mockCatalog) Product(_ context.Context, id int64) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (c *mockCatalog) Party(_ context.Context, id int64) (Party, error) {
	p, ok := c.parties[id]
	if !ok {
		return Party{}, ErrPartyNotFound
	}
	return p, nil
}

type stubNumbers struct {
	n   int
	err error
}

func (s *stubNumbers) Next(_ context.Context, series string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("%s-%03d", series, s.n), nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var (
	assamSeller = gst.PartyTaxProfile{Name: "Brahmaputra Steel", StateCode: "18", GSTIN: "18AABCB1234C1Z5"}
	assamBuyer  = gst.PartyTaxProfile{Name: "Guwahati Builders", StateCode: "18"}
	mahaBuyer   = gst.PartyTaxProfile{Name: "Pune Infra", GSTIN: "27AAACP9876Q1Z2"}
)

func setup(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	catalog := &mockCatalog{
		products: map[int64]Product{
			3: {ID: 3, Name: "TMT Bar 12mm", HSNCode: "7214", Unit: "MT", TaxRate: dec("5")},
			4: {ID: 4, Name: "Structural Beam", HSNCode: "7216", Unit: "MT", TaxRate: dec("18")},
			5: {ID: 5, Name: "Loading Charges", HSNCode: "9967", Unit: "NOS"},
		},
		parties: map[int64]Party{
			7: {ID: 7, PartyTaxProfile: assamBuyer},
			8: {ID: 8, PartyTaxProfile: gst.PartyTaxProfile{Name: "No Address Co"}},
		},
	}
	svc := NewService(repo, Options{
		Parties:  catalog,
		Products: catalog,
		Numbers:  &stubNumbers{},
		Seller:   assamSeller,
	})
	return svc, repo
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateIntraStateInvoice(t *testing.T) {
	svc, repo := setup(t)

	inv, err := svc.Create(context.Background(), CreateInput{
		BuyerID: 7,
		Lines:   []LineInput{{ProductID: 3, Quantity: dec("60"), Rate: dec("45000")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-001", inv.Number)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, gst.IntraState, inv.Classification)
	assert.True(t, dec("2700000").Equal(inv.Subtotal))
	assert.True(t, dec("67500").Equal(inv.CGST))
	assert.True(t, dec("67500").Equal(inv.SGST))
	assert.True(t, inv.IGST.IsZero())
	assert.True(t, dec("2835000").Equal(inv.GrandTotal))
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "7214", inv.Lines[0].Code)
	assert.Equal(t, "TMT Bar 12mm", inv.Lines[0].Description)
	assert.Equal(t, "Assam", inv.Buyer.StateName)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, AuditActionCreated, repo.audits[0].Action)
	assert.Equal(t, SystemActor, repo.audits[0].Actor)
}

func TestCreateInterStateInvoice(t *testing.T) {
	svc, _ := setup(t)

	inv, err := svc.Create(context.Background(), CreateInput{
		Buyer: &mahaBuyer,
		Lines: []LineInput{{ProductID: 4, Quantity: dec("1"), Rate: dec("100000")}},
	})
	require.NoError(t, err)

	assert.Equal(t, gst.InterState, inv.Classification)
	assert.True(t, dec("18000").Equal(inv.IGST))
	assert.True(t, inv.CGST.IsZero())
	assert.True(t, inv.SGST.IsZero())
}

func TestCreateTaxAdditivity(t *testing.T) {
	svc, _ := setup(t)

	inv, err := svc.Create(context.Background(), CreateInput{
		BuyerID: 7,
		Lines: []LineInput{
			{ProductID: 3, Quantity: dec("3.333"), Rate: dec("1234.56"), DiscountPercent: dec("2.5")},
			{ProductID: 4, Quantity: dec("7"), Rate: dec("99.99")},
			{ProductID: 5, Quantity: dec("1"), Rate: dec("150.5"), TaxRate: decPtr("12")},
		},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.LineAmounts.Total)
	}
	assert.True(t, sum.Equal(inv.Subtotal.Add(inv.CGST).Add(inv.SGST).Add(inv.IGST)))
	assert.True(t, inv.GrandTotal.Equal(inv.Total.Add(inv.RoundOff)))
	assert.True(t, inv.RoundOff.Abs().LessThanOrEqual(dec("0.5")))
	assert.True(t, dec("12").Equal(inv.Lines[2].TaxRate))
}

func TestCatalogRateWinsOverLineRate(t *testing.T) {
	svc, _ := setup(t)

	inv, err := svc.Create(context.Background(), CreateInput{
		BuyerID: 7,
		Lines:   []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("100"), TaxRate: decPtr("28")}},
	})
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(inv.Lines[0].TaxRate))
}

func TestCreateRejections(t *testing.T) {
	tests := []struct {
		name      string
		in        CreateInput
		wantErr   error
		wantField string
	}{
		{
			name:      "no lines",
			in:        CreateInput{BuyerID: 7},
			wantErr:   shared.ErrValidation,
			wantField: "lines",
		},
		{
			name:      "zero quantity",
			in:        CreateInput{BuyerID: 7, Lines: []LineInput{{ProductID: 3, Quantity: dec("0"), Rate: dec("1")}}},
			wantErr:   shared.ErrValidation,
			wantField: "lines[0].quantity",
		},
		{
			name:      "missing product id",
			in:        CreateInput{BuyerID: 7, Lines: []LineInput{{Quantity: dec("1"), Rate: dec("1")}}},
			wantErr:   shared.ErrValidation,
			wantField: "lines[0].product_id",
		},
		{
			name:    "unknown product",
			in:      CreateInput{BuyerID: 7, Lines: []LineInput{{ProductID: 99, Quantity: dec("1"), Rate: dec("1")}}},
			wantErr: ErrProductNotFound,
		},
		{
			name:    "unknown buyer",
			in:      CreateInput{BuyerID: 99, Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1")}}},
			wantErr: ErrPartyNotFound,
		},
		{
			name:      "no buyer",
			in:        CreateInput{Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1")}}},
			wantErr:   shared.ErrValidation,
			wantField: "buyer",
		},
		{
			name:    "buyer without jurisdiction",
			in:      CreateInput{BuyerID: 8, Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1")}}},
			wantErr: gst.ErrMissingTaxJurisdiction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setup(t)
			_, err := svc.Create(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, shared.FieldOf(err))
			}
			assert.Empty(t, repo.invoices)
		})
	}
}

func TestCreateDuplicateExplicitNumber(t *testing.T) {
	svc, repo := setup(t)
	in := CreateInput{Number: "INV-777", BuyerID: 7, Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1")}}}

	_, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrDuplicateInvoiceNumber)
	assert.Len(t, repo.invoices, 1)
}

func TestCreateNumberingFailure(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, Options{Numbers: &stubNumbers{err: errors.New("series INV inactive")}, Seller: assamSeller})

	_, err := svc.Create(context.Background(), CreateInput{
		Buyer: &assamBuyer,
		Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1"), TaxRate: decPtr("5")}},
	})
	require.Error(t, err)
	assert.Empty(t, repo.invoices)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestSubmitAndCancel(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{BuyerID: 7, Lines: []LineInput{{ProductID: 3, Quantity: dec("10"), Rate: dec("1")}}})
	require.NoError(t, err)

	repo.ledger.orders[1] = fulfilment.SalesOrder{ID: 1, Quantity: dec("10"), Status: fulfilment.StatusFullyInvoiced}
	repo.ledger.orders[2] = fulfilment.SalesOrder{ID: 2, Quantity: dec("10"), Status: fulfilment.StatusPartiallyInvoiced}
	repo.ledger.links[[2]int64{1, inv.ID}] = dec("10")
	repo.ledger.links[[2]int64{2, inv.ID}] = dec("4")
	repo.ledger.links[[2]int64{2, 99}] = dec("3")

	require.NoError(t, svc.Submit(ctx, inv.ID, "ops@acme"))
	assert.ErrorIs(t, svc.Submit(ctx, inv.ID, ""), ErrInvalidTransition)

	released, err := svc.Cancel(ctx, inv.ID, "ops@acme")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, released)
	assert.Equal(t, StatusCancelled, repo.invoices[inv.ID].Status)
	assert.Equal(t, fulfilment.StatusPending, repo.ledger.orders[1].Status)
	assert.Equal(t, fulfilment.StatusPartiallyInvoiced, repo.ledger.orders[2].Status)
	assert.Len(t, repo.ledger.links, 1)

	_, err = svc.Cancel(ctx, inv.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	actions := make([]string, 0, len(repo.audits))
	for _, a := range repo.audits {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{AuditActionCreated, AuditActionSubmitted, AuditActionCancelled}, actions)
}

func TestCancelledNumberCanBeReused(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	in := CreateInput{Number: "INV-900", BuyerID: 7, Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("1")}}}

	inv, err := svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, inv.ID, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, in)
	assert.NoError(t, err)
}

// ============================================================================
// TAX SUMMARY
// ============================================================================

func TestTaxSummaryMatchesUngroupedTotals(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	var ids []int64
	for _, lines := range [][]LineInput{
		{{ProductID: 3, Quantity: dec("60"), Rate: dec("45000")}, {ProductID: 4, Quantity: dec("2"), Rate: dec("999.99")}},
		{{ProductID: 3, Quantity: dec("1.5"), Rate: dec("333.33"), DiscountPercent: dec("7")}},
	} {
		inv, err := svc.Create(ctx, CreateInput{BuyerID: 7, Lines: lines})
		require.NoError(t, err)
		ids = append(ids, inv.ID)
	}

	summary, err := svc.TaxSummary(ctx, TaxSummaryQuery{InvoiceIDs: ids})
	require.NoError(t, err)
	require.Len(t, summary.Entries, 2)
	assert.Equal(t, "7214", summary.Entries[0].Code)
	assert.Equal(t, "7216", summary.Entries[1].Code)

	var all []gst.SummaryLine
	for _, id := range ids {
		inv, err := svc.Get(ctx, id)
		require.NoError(t, err)
		all = append(all, inv.SummaryLines()...)
	}
	ungrouped := gst.LineTotals(all)
	assert.True(t, ungrouped.TotalTax.Equal(summary.Totals.TotalTax))
	assert.True(t, ungrouped.TaxableValue.Equal(summary.Totals.TaxableValue))
}

func TestTaxSummaryExcludesCancelled(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInput{BuyerID: 7, Lines: []LineInput{{ProductID: 3, Quantity: dec("1"), Rate: dec("100")}}})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, inv.ID, "")
	require.NoError(t, err)

	summary, err := svc.TaxSummary(ctx, TaxSummaryQuery{InvoiceIDs: []int64{inv.ID}})
	require.NoError(t, err)
	assert.Empty(t, summary.Entries)
	assert.True(t, summary.Totals.TotalTax.IsZero())
}

func TestTaxSummaryQueryValidation(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.TaxSummary(context.Background(), TaxSummaryQuery{})
	assert.Equal(t, "invoice_ids", shared.FieldOf(err))
	_, err = svc.TaxSummary(context.Background(), TaxSummaryQuery{InvoiceIDs: []int64{0}})
	assert.Equal(t, "invoice_ids[0]", shared.FieldOf(err))
}
