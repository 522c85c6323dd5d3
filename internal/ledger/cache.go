package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates no cached summary for the customer.
var ErrCacheMiss = errors.New("ledger: summary cache miss")

// SummaryCache stores per-customer ledger summaries in Redis.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache instantiates the cache helper.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(customerID int64) string {
	return fmt.Sprintf("ledger:summary:%d", customerID)
}

// Get loads a cached summary. Returns ErrCacheMiss when absent or when the
// cache is not configured.
func (c *SummaryCache) Get(ctx context.Context, customerID int64) (Summary, error) {
	if c == nil || c.client == nil {
		return Summary{}, ErrCacheMiss
	}
	raw, err := c.client.Get(ctx, summaryKey(customerID)).Bytes()
	if err == redis.Nil {
		return Summary{}, ErrCacheMiss
	}
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Set stores a summary with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, summary Summary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(summary.CustomerID), raw, c.ttl).Err()
}

// Invalidate drops the cached summary after a ledger write.
func (c *SummaryCache) Invalidate(ctx context.Context, customerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(customerID)).Err()
}
