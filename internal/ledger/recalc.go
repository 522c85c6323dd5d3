package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// RecalcResult holds the outcome of recalculating one customer's ledger.
// Changed contains only entries whose Balance or Number was corrected, so
// callers persist deltas rather than rewriting the whole history.
type RecalcResult struct {
	Changed      []Entry
	ChangedCount int
	Skipped      []EntryError
}

// Recalculate rebuilds running balances and canonical payment numbers for a
// customer's full entry history. Input order does not matter; entries are
// ordered by Date, then CreatedAt, then ID. Malformed entries are skipped
// and reported without contributing to the running balance. The operation is
// idempotent: running it on corrected output changes nothing.
func Recalculate(customerID int64, entries []Entry) RecalcResult {
	var result RecalcResult

	valid := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.CustomerID != customerID {
			result.Skipped = append(result.Skipped, EntryError{
				EntryID: e.ID,
				Err:     fmt.Errorf("entry belongs to customer %d, not %d", e.CustomerID, customerID),
			})
			continue
		}
		if err := validateAmounts(e.Debit, e.Credit); err != nil {
			result.Skipped = append(result.Skipped, EntryError{EntryID: e.ID, Err: err})
			continue
		}
		valid = append(valid, e)
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	changed := make(map[int64]bool, len(valid))

	running := decimal.Zero
	for i := range valid {
		running = running.Add(valid[i].Debit).Sub(valid[i].Credit)
		if !valid[i].Balance.Equal(running) {
			valid[i].Balance = running
			changed[valid[i].ID] = true
		}
	}

	renumberPayments(valid, changed)

	for _, e := range valid {
		if changed[e.ID] {
			result.Changed = append(result.Changed, e)
		}
	}
	result.ChangedCount = len(result.Changed)
	return result
}

// renumberPayments assigns canonical numbers to payment entries that share a
// source document and collided on transaction number. The canonical form is
// PAY-<suffix>-<ordinal>, ordinal being the 1-based position in CreatedAt
// order within the group.
func renumberPayments(entries []Entry, changed map[int64]bool) {
	groups := make(map[string][]int)
	for i, e := range entries {
		if e.Type != EntryTypePayment || e.SourceID == "" {
			continue
		}
		groups[e.SourceID] = append(groups[e.SourceID], i)
	}

	for sourceID, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		seen := make(map[string]int, len(idxs))
		duplicate := false
		for _, i := range idxs {
			seen[entries[i].Number]++
			if seen[entries[i].Number] > 1 {
				duplicate = true
			}
		}
		if !duplicate {
			continue
		}
		sort.Slice(idxs, func(a, b int) bool {
			x, y := entries[idxs[a]], entries[idxs[b]]
			if !x.CreatedAt.Equal(y.CreatedAt) {
				return x.CreatedAt.Before(y.CreatedAt)
			}
			return x.ID < y.ID
		})
		for ordinal, i := range idxs {
			canonical := CanonicalPaymentNumber(sourceID, ordinal+1)
			if entries[i].Number != canonical {
				entries[i].Number = canonical
				changed[entries[i].ID] = true
			}
		}
	}
}

// CanonicalPaymentNumber builds the deterministic payment number for the
// ordinal-th payment against a source document. The suffix is the trailing 8
// characters of the source id, or the whole id when shorter.
func CanonicalPaymentNumber(sourceID string, ordinal int) string {
	suffix := sourceID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("PAY-%s-%d", suffix, ordinal)
}
