// Command ledger-repair recalculates customer ledger balances and payment
// numbers in batch, outside the HTTP server. Useful after imports or manual
// data fixes. Failures for individual customers are reported and skipped;
// the command only exits non-zero on infrastructure errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lotline/lotline/internal/app"
	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/platform/db"
)

func main() {
	customerID := flag.Int64("customer", 0, "repair a single customer (0 = all customers)")
	dryRun := flag.Bool("dry-run", false, "print corrections without persisting them")
	flag.Parse()

	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := ledger.NewRepository(pool)

	var ids []int64
	if *customerID != 0 {
		ids = []int64{*customerID}
	} else {
		ids, err = repo.ListCustomerIDs(ctx)
		if err != nil {
			logger.Error("list customers", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var changedTotal, skippedTotal, failures int
	for _, id := range ids {
		changed, skipped, err := repairCustomer(ctx, repo, id, *dryRun)
		if err != nil {
			failures++
			logger.Error("repair customer", slog.Int64("customer_id", id), slog.Any("error", err))
			continue
		}
		changedTotal += changed
		skippedTotal += skipped
		if changed > 0 || skipped > 0 {
			fmt.Printf("customer %d: %d corrected, %d skipped\n", id, changed, skipped)
		}
	}

	mode := "applied"
	if *dryRun {
		mode = "dry-run"
	}
	fmt.Printf("%s: %d customers, %d corrections, %d skipped entries, %d failures\n",
		mode, len(ids), changedTotal, skippedTotal, failures)
}

func repairCustomer(ctx context.Context, repo *ledger.Repository, customerID int64, dryRun bool) (changed, skipped int, err error) {
	entries, err := repo.ListEntries(ctx, customerID)
	if err != nil {
		return 0, 0, err
	}
	result := ledger.Recalculate(customerID, entries)
	if dryRun {
		for _, e := range result.Changed {
			fmt.Printf("  entry %d: balance -> %s number -> %s\n", e.ID, e.Balance, e.Number)
		}
	} else if result.ChangedCount > 0 {
		if err := repo.ApplyCorrections(ctx, customerID, result.Changed); err != nil {
			return 0, 0, err
		}
	}
	return result.ChangedCount, len(result.Skipped), nil
}
