package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lotline/lotline/internal/stock"
)

// StockScanner is the slice of the stock service the integrity job needs.
type StockScanner interface {
	IntegrityScan(ctx context.Context) ([]stock.IntegrityIssue, error)
}

// NewStockIntegrityHandler builds the handler for TaskStockIntegrity. Issues
// are reported through the log; a clean scan is silent at info level.
func NewStockIntegrityHandler(svc StockScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		issues, err := svc.IntegrityScan(ctx)
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			logger.Debug("stock integrity scan clean")
			return nil
		}
		for _, issue := range issues {
			logger.Error("purchase lot below zero",
				slog.Int64("lot_id", issue.LotID),
				slog.Int64("brand_id", issue.BrandID),
				slog.Int64("product_id", issue.ItemKey.ProductID),
				slog.String("variant", issue.ItemKey.Variant),
				slog.String("remaining", issue.Remaining.String()))
		}
		return nil
	}
}
