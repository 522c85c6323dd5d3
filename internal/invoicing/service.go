package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/costing"
	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/shared"
	"github.com/lotline/lotline/internal/stock"
)

// Posting re-reads lots and re-allocates when a concurrent commit consumed a
// lot first. Beyond this many attempts the conflict is returned to the caller.
const maxPostAttempts = 3

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	NextSequence(ctx context.Context, brandID int64, kind string, year int) (int, error)
	BrandCode(ctx context.Context, brandID int64) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, brandID int64, page, perPage int) ([]Invoice, shared.Pagination, error)
	MarkPosted(ctx context.Context, inv Invoice) error
	MarkVoid(ctx context.Context, invoiceID int64) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	CountPayments(ctx context.Context, invoiceID int64) (int, error)
	InsertQuotation(ctx context.Context, q Quotation) (Quotation, error)
	GetQuotation(ctx context.Context, id int64) (Quotation, error)
	MarkQuotationConverted(ctx context.Context, id int64, invoiceID int64) error
}

// StockPort is the slice of the stock service posting depends on.
type StockPort interface {
	LotsForItem(ctx context.Context, filter stock.ItemFilter) ([]costing.PurchaseLot, error)
	CommitAllocation(ctx context.Context, allocations []costing.LotAllocation) error
}

// LedgerPort writes customer ledger entries.
type LedgerPort interface {
	Record(ctx context.Context, input ledger.EntryInput) (*ledger.Entry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards posting against duplicate delivery.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates the invoicing lifecycle.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	ledger      LedgerPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stockSvc StockPort, ledgerSvc LedgerPort, audit AuditPort, idempotency IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stockSvc, ledger: ledgerSvc, audit: audit, idempotency: idempotency, logger: logger}
}

// CreateInvoice stores a draft. Drafts have no stock or ledger effect.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if input.BrandID == 0 || input.CustomerID == 0 {
		return Invoice{}, fmt.Errorf("invoicing: brand and customer required: %w", shared.ErrValidation)
	}
	if err := validateLines(input.Lines); err != nil {
		return Invoice{}, err
	}
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now().UTC()
	}
	inv := Invoice{
		BrandID:    input.BrandID,
		CustomerID: input.CustomerID,
		SourceID:   uuid.NewString(),
		Status:     StatusDraft,
		IssueDate:  issueDate,
		Subtotal:   subtotal(input.Lines),
		CreatedAt:  time.Now().UTC(),
	}
	for _, line := range input.Lines {
		inv.Lines = append(inv.Lines, Line{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.Quantity.Mul(line.UnitPrice),
		})
	}
	created, err := s.repo.InsertInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, input.ActorID, "invoice:create", created.ID, map[string]any{
		"brand_id":    created.BrandID,
		"customer_id": created.CustomerID,
		"subtotal":    created.Subtotal.String(),
	})
	return created, nil
}

// GetInvoice loads one invoice with lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices pages one brand's invoices.
func (s *Service) ListInvoices(ctx context.Context, brandID int64, page, perPage int) ([]Invoice, shared.Pagination, error) {
	if brandID == 0 {
		return nil, shared.Pagination{}, fmt.Errorf("invoicing: brand required: %w", shared.ErrValidation)
	}
	return s.repo.ListInvoices(ctx, brandID, page, perPage)
}

// PostInvoice finalises a draft: allocates every line against purchase lots
// oldest-first, commits the decrements, fixes COGS and profit, assigns the
// document number, and writes the ledger debit. A lost race on a lot triggers
// a full re-read and re-allocation.
func (s *Service) PostInvoice(ctx context.Context, invoiceID int64, idempotencyKey string, actorID int64) (Invoice, error) {
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "invoicing:post"); err != nil {
			return Invoice{}, err
		}
	}
	inv, err := s.postInvoice(ctx, invoiceID, actorID)
	if err != nil && idempotencyKey != "" && s.idempotency != nil {
		// Release the key so the caller can retry a failed posting.
		if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", delErr))
		}
	}
	return inv, err
}

func (s *Service) postInvoice(ctx context.Context, invoiceID int64, actorID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusDraft {
		return Invoice{}, ErrNotDraft
	}

	var committed []costing.LotAllocation
	cogs := decimal.Zero
	for attempt := 1; ; attempt++ {
		committed = committed[:0]
		cogs = decimal.Zero
		// One reservation map spans all lines so two lines selling the same
		// item never promise the same lot quantity twice.
		reserved := make(map[int64]decimal.Decimal)
		for i := range inv.Lines {
			line := &inv.Lines[i]
			key := costing.ItemKey{ProductID: line.ProductID, Variant: line.Variant}
			lots, err := s.stock.LotsForItem(ctx, stock.ItemFilter{BrandID: inv.BrandID, ItemKey: key})
			if err != nil {
				return Invoice{}, err
			}
			result, err := costing.Allocate(costing.AllocationRequest{
				ItemKey:  key,
				Quantity: line.Quantity,
				Reserved: reserved,
			}, lots)
			if err != nil {
				return Invoice{}, fmt.Errorf("invoicing: line %d: %w", line.ID, err)
			}
			for _, alloc := range result.Allocations {
				reserved[alloc.LotID] = reserved[alloc.LotID].Add(alloc.Quantity)
			}
			committed = append(committed, result.Allocations...)
			line.UnitCost = result.UnitCost
			line.CostTotal = result.TotalCost
			cogs = cogs.Add(result.TotalCost)
		}

		err = s.stock.CommitAllocation(ctx, committed)
		if err == nil {
			break
		}
		if !errors.Is(err, stock.ErrConcurrentModification) || attempt >= maxPostAttempts {
			return Invoice{}, err
		}
		s.logger.Info("allocation commit lost race, retrying",
			slog.Int64("invoice_id", inv.ID), slog.Int("attempt", attempt))
	}

	now := time.Now().UTC()
	year := inv.IssueDate.Year()
	code, err := s.repo.BrandCode(ctx, inv.BrandID)
	if err != nil {
		return Invoice{}, err
	}
	seq, err := s.repo.NextSequence(ctx, inv.BrandID, "INV", year)
	if err != nil {
		return Invoice{}, err
	}
	inv.Number = fmt.Sprintf("INV-%s-%d-%04d", code, year, seq)
	inv.Status = StatusPosted
	inv.COGS = cogs
	inv.Profit = inv.Subtotal.Sub(cogs)
	inv.PostedAt = &now

	if err := s.repo.MarkPosted(ctx, inv); err != nil {
		return Invoice{}, err
	}

	if _, err := s.ledger.Record(ctx, ledger.EntryInput{
		CustomerID: inv.CustomerID,
		Type:       ledger.EntryTypeInvoice,
		SourceID:   inv.SourceID,
		Number:     inv.Number,
		Date:       inv.IssueDate,
		Debit:      inv.Subtotal,
	}); err != nil {
		return Invoice{}, err
	}

	s.recordAudit(ctx, actorID, "invoice:post", inv.ID, map[string]any{
		"number": inv.Number,
		"cogs":   inv.COGS.String(),
		"profit": inv.Profit.String(),
	})
	return inv, nil
}

// RecordPayment stores a payment and writes the matching ledger credit. The
// payment number follows the canonical PAY-<suffix>-<ordinal> scheme so the
// reconciler never needs to rename a number minted here.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Payment, error) {
	if !input.Amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	inv, err := s.repo.GetInvoice(ctx, input.InvoiceID)
	if err != nil {
		return Payment{}, err
	}
	if inv.Status != StatusPosted {
		return Payment{}, ErrNotPosted
	}
	count, err := s.repo.CountPayments(ctx, inv.ID)
	if err != nil {
		return Payment{}, err
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	payment := Payment{
		InvoiceID: inv.ID,
		Number:    ledger.CanonicalPaymentNumber(inv.SourceID, count+1),
		Amount:    input.Amount,
		PaidAt:    paidAt,
		CreatedAt: time.Now().UTC(),
	}
	payment, err = s.repo.InsertPayment(ctx, payment)
	if err != nil {
		return Payment{}, err
	}

	if _, err := s.ledger.Record(ctx, ledger.EntryInput{
		CustomerID: inv.CustomerID,
		Type:       ledger.EntryTypePayment,
		SourceID:   inv.SourceID,
		Number:     payment.Number,
		Date:       paidAt,
		Credit:     input.Amount,
	}); err != nil {
		return Payment{}, err
	}

	s.recordAudit(ctx, input.ActorID, "payment:record", payment.ID, map[string]any{
		"invoice_id": inv.ID,
		"number":     payment.Number,
		"amount":     payment.Amount.String(),
	})
	return payment, nil
}

// VoidInvoice cancels a posted invoice with a compensating credit note entry.
// Consumed lots stay consumed; restocking is a deliberate manual action.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID int64, actorID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusPosted {
		return Invoice{}, ErrNotPosted
	}
	if err := s.repo.MarkVoid(ctx, inv.ID); err != nil {
		return Invoice{}, err
	}
	if _, err := s.ledger.Record(ctx, ledger.EntryInput{
		CustomerID: inv.CustomerID,
		Type:       ledger.EntryTypeCreditNote,
		SourceID:   inv.SourceID,
		Number:     "CN-" + inv.Number,
		Date:       time.Now().UTC(),
		Credit:     inv.Subtotal,
	}); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusVoid
	s.recordAudit(ctx, actorID, "invoice:void", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// CreateQuotation stores a numbered quotation.
func (s *Service) CreateQuotation(ctx context.Context, input CreateQuotationInput) (Quotation, error) {
	if input.BrandID == 0 || input.CustomerID == 0 {
		return Quotation{}, fmt.Errorf("invoicing: brand and customer required: %w", shared.ErrValidation)
	}
	if err := validateLines(input.Lines); err != nil {
		return Quotation{}, err
	}
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now().UTC()
	}
	code, err := s.repo.BrandCode(ctx, input.BrandID)
	if err != nil {
		return Quotation{}, err
	}
	seq, err := s.repo.NextSequence(ctx, input.BrandID, "QUO", issueDate.Year())
	if err != nil {
		return Quotation{}, err
	}
	q := Quotation{
		BrandID:    input.BrandID,
		CustomerID: input.CustomerID,
		Number:     fmt.Sprintf("QUO-%s-%d-%04d", code, issueDate.Year(), seq),
		Status:     QuotationOpen,
		IssueDate:  issueDate,
		Subtotal:   subtotal(input.Lines),
		CreatedAt:  time.Now().UTC(),
	}
	for _, line := range input.Lines {
		q.Lines = append(q.Lines, Line{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.Quantity.Mul(line.UnitPrice),
		})
	}
	created, err := s.repo.InsertQuotation(ctx, q)
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, input.ActorID, "quotation:create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// ConvertQuotation turns an open quotation into a draft invoice. The
// quotation can only be converted once.
func (s *Service) ConvertQuotation(ctx context.Context, quotationID int64, actorID int64) (Invoice, error) {
	q, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return Invoice{}, err
	}
	if q.Status != QuotationOpen {
		return Invoice{}, ErrAlreadyConverted
	}
	lines := make([]LineInput, 0, len(q.Lines))
	for _, line := range q.Lines {
		lines = append(lines, LineInput{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	inv, err := s.CreateInvoice(ctx, CreateInvoiceInput{
		BrandID:    q.BrandID,
		CustomerID: q.CustomerID,
		Lines:      lines,
		ActorID:    actorID,
	})
	if err != nil {
		return Invoice{}, err
	}
	if err := s.repo.MarkQuotationConverted(ctx, q.ID, inv.ID); err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "quotation:convert", q.ID, map[string]any{"invoice_id": inv.ID})
	return inv, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "invoice"
	switch action {
	case "payment:record":
		entity = "payment"
	case "quotation:create", "quotation:convert":
		entity = "quotation"
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
