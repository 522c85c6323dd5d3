package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	entries   map[int64]*Entry
	nextID    int64
	listCalls int
	failFor   map[int64]error
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{entries: make(map[int64]*Entry), failFor: make(map[int64]error)}
}

func (r *memoryLedgerRepo) ordered(customerID int64) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.CustomerID == customerID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, customerID int64) ([]Entry, error) {
	if err := r.failFor[customerID]; err != nil {
		return nil, err
	}
	r.listCalls++
	return r.ordered(customerID), nil
}

func (r *memoryLedgerRepo) ListCustomerIDs(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range r.entries {
		if !seen[e.CustomerID] {
			seen[e.CustomerID] = true
			ids = append(ids, e.CustomerID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryLedgerRepo) InsertEntry(ctx context.Context, input EntryInput) (*Entry, error) {
	ordered := r.ordered(input.CustomerID)
	prev := decimal.Zero
	if len(ordered) > 0 {
		prev = ordered[len(ordered)-1].Balance
	}
	r.nextID++
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	e := &Entry{
		ID:         r.nextID,
		CustomerID: input.CustomerID,
		Type:       input.Type,
		SourceID:   input.SourceID,
		Number:     input.Number,
		Date:       date,
		Debit:      input.Debit,
		Credit:     input.Credit,
		Balance:    prev.Add(input.Debit).Sub(input.Credit),
		CreatedAt:  time.Now().UTC(),
	}
	r.entries[e.ID] = e
	out := *e
	return &out, nil
}

func (r *memoryLedgerRepo) ApplyCorrections(ctx context.Context, customerID int64, entries []Entry) error {
	for _, e := range entries {
		stored, ok := r.entries[e.ID]
		if !ok || stored.CustomerID != customerID {
			return errors.New("entry not found")
		}
		stored.Balance = e.Balance
		stored.Number = e.Number
	}
	return nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewSummaryCache(client, time.Minute)
	return NewService(repo, cache, nil, nil), client
}

func TestRecordAssignsRunningBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	first, err := svc.Record(ctx, EntryInput{
		CustomerID: 7,
		Type:       EntryTypeInvoice,
		Number:     "INV-001",
		Debit:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.True(t, first.Balance.Equal(decimal.NewFromInt(100)))

	second, err := svc.Record(ctx, EntryInput{
		CustomerID: 7,
		Type:       EntryTypePayment,
		Number:     "PAY-001",
		Credit:     decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	require.True(t, second.Balance.Equal(decimal.NewFromInt(70)))
}

func TestRecordRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Record(ctx, EntryInput{
		CustomerID: 7,
		Type:       EntryTypeAdjustment,
		Debit:      decimal.NewFromInt(10),
		Credit:     decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, ErrMalformedEntry)

	_, err = svc.Record(ctx, EntryInput{CustomerID: 7, Type: EntryTypeAdjustment})
	require.ErrorIs(t, err, ErrMalformedEntry)

	_, err = svc.Record(ctx, EntryInput{Type: EntryTypeInvoice, Debit: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Record(ctx, EntryInput{
		CustomerID: 7,
		Type:       EntryType("refund"),
		Debit:      decimal.NewFromInt(5),
	})
	require.Error(t, err)
}

func TestGetSummaryCaches(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Record(ctx, EntryInput{CustomerID: 7, Type: EntryTypeInvoice, Number: "INV-001", Debit: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = svc.Record(ctx, EntryInput{CustomerID: 7, Type: EntryTypePayment, Number: "PAY-001", Credit: decimal.NewFromInt(40)})
	require.NoError(t, err)

	repo.listCalls = 0
	summary, err := svc.GetSummary(ctx, 7)
	require.NoError(t, err)
	require.True(t, summary.TotalDebit.Equal(decimal.NewFromInt(100)))
	require.True(t, summary.TotalCredit.Equal(decimal.NewFromInt(40)))
	require.True(t, summary.Balance.Equal(decimal.NewFromInt(60)))
	require.Equal(t, 2, summary.EntryCount)
	require.Equal(t, 1, repo.listCalls)

	// Second read is served from the cache.
	summary, err = svc.GetSummary(ctx, 7)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(decimal.NewFromInt(60)))
	require.Equal(t, 1, repo.listCalls)
}

func TestRecordInvalidatesSummaryCache(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Record(ctx, EntryInput{CustomerID: 7, Type: EntryTypeInvoice, Number: "INV-001", Debit: decimal.NewFromInt(100)})
	require.NoError(t, err)

	summary, err := svc.GetSummary(ctx, 7)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(decimal.NewFromInt(100)))

	_, err = svc.Record(ctx, EntryInput{CustomerID: 7, Type: EntryTypePayment, Number: "PAY-001", Credit: decimal.NewFromInt(25)})
	require.NoError(t, err)

	summary, err = svc.GetSummary(ctx, 7)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(decimal.NewFromInt(75)))
}

func TestSummaryMatchesLatestEntryBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	var last *Entry
	var err error
	for i, amount := range []int64{100, 250, 40} {
		last, err = svc.Record(ctx, EntryInput{
			CustomerID: 3,
			Type:       EntryTypeInvoice,
			Number:     "INV-00" + string(rune('1'+i)),
			Debit:      decimal.NewFromInt(amount),
		})
		require.NoError(t, err)
	}

	summary, err := svc.GetSummary(ctx, 3)
	require.NoError(t, err)
	require.True(t, summary.Balance.Equal(last.Balance))
}

func TestReconcilePersistsDeltas(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	repo.entries[1] = &Entry{ID: 1, CustomerID: 9, Type: EntryTypeInvoice, Number: "INV-1", Date: day1, Debit: decimal.NewFromInt(100), Balance: decimal.NewFromInt(999), CreatedAt: day1}
	repo.entries[2] = &Entry{ID: 2, CustomerID: 9, Type: EntryTypePayment, Number: "PAY-1", Date: day2, Credit: decimal.NewFromInt(50), Balance: decimal.NewFromInt(999), CreatedAt: day2}
	repo.nextID = 2

	result, err := svc.Reconcile(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 2, result.ChangedCount)
	require.True(t, repo.entries[1].Balance.Equal(decimal.NewFromInt(100)))
	require.True(t, repo.entries[2].Balance.Equal(decimal.NewFromInt(50)))

	// Second pass is a no-op.
	result, err = svc.Reconcile(ctx, 9)
	require.NoError(t, err)
	require.Zero(t, result.ChangedCount)
}

func TestReconcileAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc, _ := newTestService(t, repo)

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.entries[1] = &Entry{ID: 1, CustomerID: 1, Type: EntryTypeInvoice, Number: "INV-1", Date: day1, Debit: decimal.NewFromInt(10), CreatedAt: day1}
	repo.entries[2] = &Entry{ID: 2, CustomerID: 2, Type: EntryTypeInvoice, Number: "INV-2", Date: day1, Debit: decimal.NewFromInt(20), CreatedAt: day1}
	repo.entries[3] = &Entry{ID: 3, CustomerID: 3, Type: EntryTypeInvoice, Number: "INV-3", Date: day1, Debit: decimal.NewFromInt(30), CreatedAt: day1}
	repo.nextID = 3
	repo.failFor[2] = errors.New("storage offline")

	batch, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Customers)
	require.Len(t, batch.Failures, 1)
	require.Equal(t, int64(2), batch.Failures[0].CustomerID)
	// Customers 1 and 3 were still corrected.
	require.Equal(t, 2, batch.ChangedTotal)
}
