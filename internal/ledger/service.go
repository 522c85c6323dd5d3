package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/lotline/lotline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	ListEntries(ctx context.Context, customerID int64) ([]Entry, error)
	ListCustomerIDs(ctx context.Context) ([]int64, error)
	InsertEntry(ctx context.Context, input EntryInput) (*Entry, error)
	ApplyCorrections(ctx context.Context, customerID int64, entries []Entry) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger reads, writes, and reconciliation.
type Service struct {
	repo   RepositoryPort
	cache  *SummaryCache
	audit  AuditPort
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *SummaryCache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// Record appends a ledger entry after enforcing the debit/credit invariant.
func (s *Service) Record(ctx context.Context, input EntryInput) (*Entry, error) {
	if input.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}
	if err := validateAmounts(input.Debit, input.Credit); err != nil {
		return nil, err
	}
	switch input.Type {
	case EntryTypeInvoice, EntryTypePayment, EntryTypeAdjustment, EntryTypeCreditNote, EntryTypeDebitNote:
	default:
		return nil, fmt.Errorf("ledger: unknown entry type %q: %w", input.Type, shared.ErrValidation)
	}

	entry, err := s.repo.InsertEntry(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, input.CustomerID); err != nil {
		s.logger.Warn("invalidate summary cache", slog.Int64("customer_id", input.CustomerID), slog.Any("error", err))
	}
	return entry, nil
}

// Statement returns the customer's full ledger in (date, created_at) order.
func (s *Service) Statement(ctx context.Context, customerID int64) ([]Entry, error) {
	if customerID == 0 {
		return nil, ErrCustomerRequired
	}
	return s.repo.ListEntries(ctx, customerID)
}

// GetSummary returns the cached summary, rebuilding it from the entry history
// on a miss. Concurrent rebuilds for the same customer collapse into one.
func (s *Service) GetSummary(ctx context.Context, customerID int64) (Summary, error) {
	if customerID == 0 {
		return Summary{}, ErrCustomerRequired
	}
	if summary, err := s.cache.Get(ctx, customerID); err == nil {
		return summary, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("summary cache read", slog.Int64("customer_id", customerID), slog.Any("error", err))
	}

	v, err, _ := s.group.Do(strconv.FormatInt(customerID, 10), func() (any, error) {
		entries, err := s.repo.ListEntries(ctx, customerID)
		if err != nil {
			return Summary{}, err
		}
		summary := BuildSummary(customerID, entries)
		if err := s.cache.Set(ctx, summary); err != nil {
			s.logger.Warn("summary cache write", slog.Int64("customer_id", customerID), slog.Any("error", err))
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// BuildSummary aggregates totals over well-formed entries. The resulting
// Balance equals the running balance after the customer's latest entry.
func BuildSummary(customerID int64, entries []Entry) Summary {
	summary := Summary{CustomerID: customerID}
	for _, e := range entries {
		if validateAmounts(e.Debit, e.Credit) != nil {
			continue
		}
		summary.TotalDebit = summary.TotalDebit.Add(e.Debit)
		summary.TotalCredit = summary.TotalCredit.Add(e.Credit)
		summary.EntryCount++
	}
	summary.Balance = summary.TotalDebit.Sub(summary.TotalCredit)
	return summary
}

// Reconcile recalculates one customer's ledger and persists only the deltas.
func (s *Service) Reconcile(ctx context.Context, customerID int64) (RecalcResult, error) {
	if customerID == 0 {
		return RecalcResult{}, ErrCustomerRequired
	}
	entries, err := s.repo.ListEntries(ctx, customerID)
	if err != nil {
		return RecalcResult{}, err
	}
	result := Recalculate(customerID, entries)
	if result.ChangedCount > 0 {
		if err := s.repo.ApplyCorrections(ctx, customerID, result.Changed); err != nil {
			return RecalcResult{}, err
		}
		if err := s.cache.Invalidate(ctx, customerID); err != nil {
			s.logger.Warn("invalidate summary cache", slog.Int64("customer_id", customerID), slog.Any("error", err))
		}
	}
	if s.audit != nil && result.ChangedCount > 0 {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "ledger:reconcile",
			Entity:   "customer_ledger",
			EntityID: strconv.FormatInt(customerID, 10),
			Meta: map[string]any{
				"changed": result.ChangedCount,
				"skipped": len(result.Skipped),
			},
		})
	}
	return result, nil
}

// CustomerError pairs a customer with the failure that stopped their run.
type CustomerError struct {
	CustomerID int64
	Err        error
}

func (e CustomerError) Error() string {
	return fmt.Sprintf("ledger: customer %d: %v", e.CustomerID, e.Err)
}

func (e CustomerError) Unwrap() error { return e.Err }

// BatchResult summarises a reconciliation sweep across customers.
type BatchResult struct {
	Customers    int
	ChangedTotal int
	SkippedTotal int
	Failures     []CustomerError
}

// ReconcileAll sweeps every customer with ledger history. A failure for one
// customer is recorded and the sweep continues; it never aborts the batch.
func (s *Service) ReconcileAll(ctx context.Context) (BatchResult, error) {
	ids, err := s.repo.ListCustomerIDs(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	var batch BatchResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		result, err := s.Reconcile(ctx, id)
		batch.Customers++
		if err != nil {
			batch.Failures = append(batch.Failures, CustomerError{CustomerID: id, Err: err})
			s.logger.Error("reconcile customer", slog.Int64("customer_id", id), slog.Any("error", err))
			continue
		}
		batch.ChangedTotal += result.ChangedCount
		batch.SkippedTotal += len(result.Skipped)
	}
	return batch, nil
}
