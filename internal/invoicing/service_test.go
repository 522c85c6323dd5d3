package invoicing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline/lotline/internal/costing"
	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/shared"
	"github.com/lotline/lotline/internal/stock"
)

type fakeInvoiceRepo struct {
	invoices   map[int64]*Invoice
	quotations map[int64]*Quotation
	payments   map[int64]*Payment
	sequences  map[string]int
	brandCodes map[int64]string
	nextID     int64
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		invoices:   make(map[int64]*Invoice),
		quotations: make(map[int64]*Quotation),
		payments:   make(map[int64]*Payment),
		sequences:  make(map[string]int),
		brandCodes: map[int64]string{1: "ACME"},
	}
}

func (r *fakeInvoiceRepo) NextSequence(ctx context.Context, brandID int64, kind string, year int) (int, error) {
	key := fmt.Sprintf("%d/%s/%d", brandID, kind, year)
	r.sequences[key]++
	return r.sequences[key], nil
}

func (r *fakeInvoiceRepo) BrandCode(ctx context.Context, brandID int64) (string, error) {
	code, ok := r.brandCodes[brandID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return code, nil
}

func (r *fakeInvoiceRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	r.nextID++
	inv.ID = r.nextID
	for i := range inv.Lines {
		r.nextID++
		inv.Lines[i].ID = r.nextID
	}
	stored := inv
	r.invoices[inv.ID] = &stored
	return inv, nil
}

func (r *fakeInvoiceRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	out := *inv
	out.Lines = append([]Line(nil), inv.Lines...)
	return out, nil
}

func (r *fakeInvoiceRepo) ListInvoices(ctx context.Context, brandID int64, page, perPage int) ([]Invoice, shared.Pagination, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.BrandID == brandID {
			out = append(out, *inv)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (r *fakeInvoiceRepo) MarkPosted(ctx context.Context, inv Invoice) error {
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Status != StatusDraft {
		return ErrNotDraft
	}
	stored.Number = inv.Number
	stored.Status = StatusPosted
	stored.COGS = inv.COGS
	stored.Profit = inv.Profit
	stored.PostedAt = inv.PostedAt
	stored.Lines = append([]Line(nil), inv.Lines...)
	return nil
}

func (r *fakeInvoiceRepo) MarkVoid(ctx context.Context, invoiceID int64) error {
	stored, ok := r.invoices[invoiceID]
	if !ok || stored.Status != StatusPosted {
		return ErrNotPosted
	}
	stored.Status = StatusVoid
	return nil
}

func (r *fakeInvoiceRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	r.nextID++
	p.ID = r.nextID
	stored := p
	r.payments[p.ID] = &stored
	return p, nil
}

func (r *fakeInvoiceRepo) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	n := 0
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			n++
		}
	}
	return n, nil
}

func (r *fakeInvoiceRepo) InsertQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	r.nextID++
	q.ID = r.nextID
	stored := q
	r.quotations[q.ID] = &stored
	return q, nil
}

func (r *fakeInvoiceRepo) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return Quotation{}, shared.ErrNotFound
	}
	return *q, nil
}

func (r *fakeInvoiceRepo) MarkQuotationConverted(ctx context.Context, id int64, invoiceID int64) error {
	q, ok := r.quotations[id]
	if !ok || q.Status != QuotationOpen {
		return ErrAlreadyConverted
	}
	q.Status = QuotationConverted
	return nil
}

type fakeStockPort struct {
	lots      map[int64]*stock.Lot
	conflicts int
	commits   int
}

func newFakeStockPort() *fakeStockPort {
	return &fakeStockPort{lots: make(map[int64]*stock.Lot)}
}

func (f *fakeStockPort) addLot(id int64, brandID int64, key costing.ItemKey, day int, cost, qty int64) {
	f.lots[id] = &stock.Lot{
		PurchaseLot: costing.PurchaseLot{
			ID:           id,
			ItemKey:      key,
			PurchaseDate: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
			UnitCost:     decimal.NewFromInt(cost),
			Remaining:    decimal.NewFromInt(qty),
		},
		BrandID: brandID,
	}
}

func (f *fakeStockPort) LotsForItem(ctx context.Context, filter stock.ItemFilter) ([]costing.PurchaseLot, error) {
	var out []costing.PurchaseLot
	for _, lot := range f.lots {
		if lot.BrandID == filter.BrandID && lot.ItemKey == filter.ItemKey && lot.Remaining.IsPositive() {
			out = append(out, lot.PurchaseLot)
		}
	}
	return out, nil
}

func (f *fakeStockPort) CommitAllocation(ctx context.Context, allocations []costing.LotAllocation) error {
	f.commits++
	if f.conflicts > 0 {
		f.conflicts--
		return stock.ErrConcurrentModification
	}
	for _, alloc := range allocations {
		lot, ok := f.lots[alloc.LotID]
		if !ok || lot.Remaining.LessThan(alloc.Quantity) {
			return stock.ErrConcurrentModification
		}
	}
	for _, alloc := range allocations {
		lot := f.lots[alloc.LotID]
		lot.Remaining = lot.Remaining.Sub(alloc.Quantity)
	}
	return nil
}

type fakeLedgerPort struct {
	entries []ledger.EntryInput
}

func (f *fakeLedgerPort) Record(ctx context.Context, input ledger.EntryInput) (*ledger.Entry, error) {
	f.entries = append(f.entries, input)
	return &ledger.Entry{
		ID:         int64(len(f.entries)),
		CustomerID: input.CustomerID,
		Type:       input.Type,
		SourceID:   input.SourceID,
		Number:     input.Number,
		Debit:      input.Debit,
		Credit:     input.Credit,
	}, nil
}

type fakeIdempotency struct {
	keys map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]bool)}
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

var keyRed = costing.ItemKey{ProductID: 10, Variant: "RED"}

func newInvoicingFixture() (*Service, *fakeInvoiceRepo, *fakeStockPort, *fakeLedgerPort, *fakeIdempotency) {
	repo := newFakeInvoiceRepo()
	stockPort := newFakeStockPort()
	ledgerPort := &fakeLedgerPort{}
	idem := newFakeIdempotency()
	svc := NewService(repo, stockPort, ledgerPort, nil, idem, nil)
	return svc, repo, stockPort, ledgerPort, idem
}

func draftInvoice(t *testing.T, svc *Service, lines ...LineInput) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		BrandID:    1,
		CustomerID: 7,
		IssueDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines:      lines,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceDraft(t *testing.T) {
	svc, _, _, ledgerPort, _ := newInvoicingFixture()

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(7),
		UnitPrice: decimal.NewFromInt(20),
	})
	require.Equal(t, StatusDraft, inv.Status)
	require.Empty(t, inv.Number)
	require.NotEmpty(t, inv.SourceID)
	require.True(t, inv.Subtotal.Equal(decimal.NewFromInt(140)))
	require.Empty(t, ledgerPort.entries)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _, _, _, _ := newInvoicingFixture()
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{BrandID: 1, CustomerID: 7})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		BrandID: 1, CustomerID: 7,
		Lines: []LineInput{{ProductID: 10, Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(5)}},
	})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 7,
		Lines:      []LineInput{{ProductID: 10, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostInvoiceAllocatesOldestFirst(t *testing.T) {
	svc, _, stockPort, ledgerPort, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 5)
	stockPort.addLot(2, 1, keyRed, 5, 12, 5)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(7),
		UnitPrice: decimal.NewFromInt(20),
	})

	posted, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, "INV-ACME-2026-0001", posted.Number)
	require.True(t, posted.COGS.Equal(decimal.NewFromInt(74)))
	require.True(t, posted.Profit.Equal(decimal.NewFromInt(66)))

	// Oldest lot drained first, newer lot partially consumed.
	require.True(t, stockPort.lots[1].Remaining.IsZero())
	require.True(t, stockPort.lots[2].Remaining.Equal(decimal.NewFromInt(3)))

	require.Len(t, ledgerPort.entries, 1)
	entry := ledgerPort.entries[0]
	require.Equal(t, ledger.EntryTypeInvoice, entry.Type)
	require.Equal(t, posted.Number, entry.Number)
	require.Equal(t, posted.SourceID, entry.SourceID)
	require.True(t, entry.Debit.Equal(decimal.NewFromInt(140)))
}

func TestPostInvoiceSharesReservationAcrossLines(t *testing.T) {
	svc, _, stockPort, _, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 5)
	stockPort.addLot(2, 1, keyRed, 5, 12, 5)

	// Two lines selling the same item: the second must not re-promise lot 1.
	inv := draftInvoice(t, svc,
		LineInput{ProductID: 10, Variant: "RED", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(20)},
		LineInput{ProductID: 10, Variant: "RED", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(20)},
	)

	posted, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)
	require.True(t, posted.COGS.Equal(decimal.NewFromInt(74)))
	require.True(t, posted.Lines[0].CostTotal.Equal(decimal.NewFromInt(50)))
	require.True(t, posted.Lines[1].CostTotal.Equal(decimal.NewFromInt(24)))
	require.True(t, stockPort.lots[1].Remaining.IsZero())
	require.True(t, stockPort.lots[2].Remaining.Equal(decimal.NewFromInt(3)))
}

func TestPostInvoiceInsufficientStock(t *testing.T) {
	svc, repo, stockPort, ledgerPort, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 5)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(11),
		UnitPrice: decimal.NewFromInt(20),
	})

	_, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.ErrorIs(t, err, costing.ErrInsufficientStock)

	var insufficient *costing.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Shortfall.Equal(decimal.NewFromInt(6)))

	// Nothing was committed or booked.
	require.True(t, stockPort.lots[1].Remaining.Equal(decimal.NewFromInt(5)))
	require.Empty(t, ledgerPort.entries)
	require.Equal(t, StatusDraft, repo.invoices[inv.ID].Status)
}

func TestPostInvoiceRetriesLostRace(t *testing.T) {
	svc, _, stockPort, _, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)
	stockPort.conflicts = 1

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(20),
	})

	posted, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, 2, stockPort.commits)
}

func TestPostInvoiceGivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, _, stockPort, ledgerPort, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)
	stockPort.conflicts = maxPostAttempts

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(20),
	})

	_, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.ErrorIs(t, err, stock.ErrConcurrentModification)
	require.Equal(t, maxPostAttempts, stockPort.commits)
	require.Empty(t, ledgerPort.entries)
}

func TestPostInvoiceRejectsNonDraft(t *testing.T) {
	svc, _, stockPort, _, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(20),
	})
	_, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)

	_, err = svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestPostInvoiceIdempotencyKey(t *testing.T) {
	svc, _, stockPort, _, idem := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(20),
	})

	_, err := svc.PostInvoice(context.Background(), inv.ID, "post-1", 0)
	require.NoError(t, err)

	_, err = svc.PostInvoice(context.Background(), inv.ID, "post-1", 0)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, idem.keys["post-1"])
}

func TestPostInvoiceReleasesKeyOnFailure(t *testing.T) {
	svc, _, _, _, idem := newInvoicingFixture()
	// No stock at all: posting fails after the key is reserved.
	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(20),
	})

	_, err := svc.PostInvoice(context.Background(), inv.ID, "post-2", 0)
	require.ErrorIs(t, err, costing.ErrInsufficientStock)
	require.False(t, idem.keys["post-2"])
}

func TestRecordPaymentUsesCanonicalNumbers(t *testing.T) {
	svc, _, stockPort, ledgerPort, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(25),
	})
	posted, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)

	first, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: posted.ID,
		Amount:    decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CanonicalPaymentNumber(posted.SourceID, 1), first.Number)

	second, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: posted.ID,
		Amount:    decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CanonicalPaymentNumber(posted.SourceID, 2), second.Number)
	require.NotEqual(t, first.Number, second.Number)

	require.Len(t, ledgerPort.entries, 3)
	credit := ledgerPort.entries[1]
	require.Equal(t, ledger.EntryTypePayment, credit.Type)
	require.Equal(t, posted.SourceID, credit.SourceID)
	require.True(t, credit.Credit.Equal(decimal.NewFromInt(60)))
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _, _, _, _ := newInvoicingFixture()
	ctx := context.Background()

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(25),
	})

	_, err := svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Draft invoices cannot take payments.
	_, err = svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestVoidInvoiceWritesCreditNote(t *testing.T) {
	svc, _, stockPort, ledgerPort, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 10)

	inv := draftInvoice(t, svc, LineInput{
		ProductID: 10, Variant: "RED",
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(25),
	})
	posted, err := svc.PostInvoice(context.Background(), inv.ID, "", 0)
	require.NoError(t, err)

	voided, err := svc.VoidInvoice(context.Background(), posted.ID, 0)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	require.Len(t, ledgerPort.entries, 2)
	note := ledgerPort.entries[1]
	require.Equal(t, ledger.EntryTypeCreditNote, note.Type)
	require.Equal(t, "CN-"+posted.Number, note.Number)
	require.True(t, note.Credit.Equal(decimal.NewFromInt(100)))

	// Voiding does not restock the consumed lots.
	require.True(t, stockPort.lots[1].Remaining.Equal(decimal.NewFromInt(6)))

	_, err = svc.VoidInvoice(context.Background(), posted.ID, 0)
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestQuotationLifecycle(t *testing.T) {
	svc, _, _, ledgerPort, _ := newInvoicingFixture()
	ctx := context.Background()

	q, err := svc.CreateQuotation(ctx, CreateQuotationInput{
		BrandID:    1,
		CustomerID: 7,
		IssueDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{ProductID: 10, Variant: "RED", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(15)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "QUO-ACME-2026-0001", q.Number)
	require.Equal(t, QuotationOpen, q.Status)
	require.Empty(t, ledgerPort.entries)

	inv, err := svc.ConvertQuotation(ctx, q.ID, 0)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.True(t, inv.Subtotal.Equal(q.Subtotal))
	require.Len(t, inv.Lines, 1)

	_, err = svc.ConvertQuotation(ctx, q.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestInvoiceAndQuotationSequencesAreIndependent(t *testing.T) {
	svc, _, stockPort, _, _ := newInvoicingFixture()
	stockPort.addLot(1, 1, keyRed, 1, 10, 100)
	ctx := context.Background()

	q, err := svc.CreateQuotation(ctx, CreateQuotationInput{
		BrandID: 1, CustomerID: 7,
		IssueDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines:     []LineInput{{ProductID: 10, Variant: "RED", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)}},
	})
	require.NoError(t, err)
	require.Equal(t, "QUO-ACME-2026-0001", q.Number)

	inv := draftInvoice(t, svc, LineInput{ProductID: 10, Variant: "RED", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)})
	posted, err := svc.PostInvoice(ctx, inv.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, "INV-ACME-2026-0001", posted.Number)
}
