package fetcher

import (
	"context"

	"polywhales/internal/model"
)

// TradeFetcher retrieves one page of recent fills from the upstream source.
// Implementations do not deduplicate, sort, or interpret trades.
type TradeFetcher interface {
	Fetch(ctx context.Context, limit, offset int) ([]model.RawTrade, error)
}
